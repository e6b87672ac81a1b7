// Package token produces and checks the opaque identifiers handed out by meetgrid.
//
// Meeting IDs and guest request IDs are public handles. Admin tokens and device
// tokens are bearer credentials: possession equals authorization, so they carry
// at least 192 bits of entropy. The validators are format checks only and are
// used to reject malformed input before any store lookup.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"

	"github.com/google/uuid"
)

const (
	// MeetingIDLength is the fixed number of characters in a meeting ID.
	MeetingIDLength = 10

	adminTokenBytes  = 32
	deviceTokenBytes = 24
	guestIDLength    = 16
	guestIDPrefix    = "req_"

	alphanumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	lowerAlnum   = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var (
	meetingIDPattern     = regexp.MustCompile(`^[0-9A-Za-z]{10}$`)
	adminTokenPattern    = regexp.MustCompile(`^[0-9a-f]{64}$`)
	deviceTokenPattern   = regexp.MustCompile(`^[0-9A-Za-z_-]{32}$`)
	participantIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	guestIDPattern       = regexp.MustCompile(`^req_[0-9a-z]{16}$`)
)

// Generator creates identifiers from a cryptographically strong source.
type Generator struct {
	source io.Reader
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return NewGeneratorFromReader(rand.Reader)
}

// NewGeneratorFromReader returns a generator that draws bytes from r.
// Tests use it to make the output deterministic.
func NewGeneratorFromReader(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{source: r}
}

// MeetingID returns a new 10 character alphanumeric meeting identifier.
func (g *Generator) MeetingID() string {
	return g.mustString(MeetingIDLength, alphanumeric)
}

// AdminToken returns a new 64 character hex admin credential.
func (g *Generator) AdminToken() string {
	return hex.EncodeToString(g.mustBytes(adminTokenBytes))
}

// DeviceToken returns a new 32 character URL-safe device credential.
func (g *Generator) DeviceToken() string {
	return base64.RawURLEncoding.EncodeToString(g.mustBytes(deviceTokenBytes))
}

// ParticipantID returns a new random UUID.
func (g *Generator) ParticipantID() string {
	id, err := uuid.NewRandomFromReader(g.source)
	if err != nil {
		panic(fmt.Errorf("token: generate participant id: %w", err))
	}
	return id.String()
}

// GuestRequestID returns a new temporary guest request identifier.
func (g *Generator) GuestRequestID() string {
	return guestIDPrefix + g.mustString(guestIDLength, lowerAlnum)
}

func (g *Generator) mustBytes(n int) []byte {
	buf := make([]byte, n)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		// crypto/rand does not fail on supported platforms; an exhausted test
		// reader is a programming error.
		panic(fmt.Errorf("token: read random bytes: %w", err))
	}
	return buf
}

// mustString draws n characters from alphabet with rejection sampling so every
// character is equally likely.
func (g *Generator) mustString(n int, alphabet string) string {
	limit := 256 - (256 % len(alphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			panic(fmt.Errorf("token: read random bytes: %w", err))
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}

// ValidMeetingID reports whether s has the shape of a meeting ID.
func ValidMeetingID(s string) bool { return meetingIDPattern.MatchString(s) }

// ValidAdminToken reports whether s has the shape of an admin token.
func ValidAdminToken(s string) bool { return adminTokenPattern.MatchString(s) }

// ValidDeviceToken reports whether s has the shape of a device token.
func ValidDeviceToken(s string) bool { return deviceTokenPattern.MatchString(s) }

// ValidParticipantID reports whether s is a lowercase canonical UUID.
func ValidParticipantID(s string) bool { return participantIDPattern.MatchString(s) }

// ValidGuestRequestID reports whether s has the shape of a guest request ID.
func ValidGuestRequestID(s string) bool { return guestIDPattern.MatchString(s) }
