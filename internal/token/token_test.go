package token

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorFormats(t *testing.T) {
	g := NewGenerator()

	for i := 0; i < 50; i++ {
		assert.True(t, ValidMeetingID(g.MeetingID()))
		assert.True(t, ValidAdminToken(g.AdminToken()))
		assert.True(t, ValidDeviceToken(g.DeviceToken()))
		assert.True(t, ValidParticipantID(g.ParticipantID()))
		assert.True(t, ValidGuestRequestID(g.GuestRequestID()))
	}
}

func TestGeneratorUniqueness(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := g.MeetingID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate meeting id %q", id)
		seen[id] = struct{}{}
	}
}

func TestGeneratorRejectionSampling(t *testing.T) {
	// 0xff is above the unbiased limit for a 62 character alphabet and must be skipped.
	src := bytes.NewReader(append(bytes.Repeat([]byte{0xff}, 10), bytes.Repeat([]byte{1}, 10)...))
	g := NewGeneratorFromReader(src)

	assert.Equal(t, "1111111111", g.MeetingID())
}

func TestGeneratorPanicsOnExhaustedSource(t *testing.T) {
	g := NewGeneratorFromReader(bytes.NewReader([]byte{1, 2, 3}))
	assert.Panics(t, func() { g.AdminToken() })
}

func TestValidators(t *testing.T) {
	cases := []struct {
		name  string
		check func(string) bool
		input string
		want  bool
	}{
		{"meeting ok", ValidMeetingID, "aB3dE6gH9j", true},
		{"meeting short", ValidMeetingID, "aB3dE6gH9", false},
		{"meeting symbol", ValidMeetingID, "aB3dE6gH9!", false},
		{"admin ok", ValidAdminToken, "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", true},
		{"admin upper", ValidAdminToken, "0123456789ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef", false},
		{"device ok", ValidDeviceToken, "abcdefghijklmnopqrstuvwxyz012-_A", true},
		{"device long", ValidDeviceToken, "abcdefghijklmnopqrstuvwxyz012-_AB", false},
		{"participant ok", ValidParticipantID, "3f2504e0-4f89-41d3-9a0c-0305e82c3301", true},
		{"participant braces", ValidParticipantID, "{3f2504e0-4f89-41d3-9a0c-0305e82c3301}", false},
		{"participant path", ValidParticipantID, "a.b", false},
		{"guest ok", ValidGuestRequestID, "req_0123456789abcdef", true},
		{"guest prefix", ValidGuestRequestID, "xyz_0123456789abcdef", false},
		{"empty", ValidMeetingID, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.check(tc.input))
		})
	}
}
