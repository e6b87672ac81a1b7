package testfixtures

import (
	"fmt"
	"sync"
)

// TokenGenerator issues deterministic identifiers that still pass the
// production format validators.
type TokenGenerator struct {
	mu         sync.Mutex
	counter    uint64
	meetingIDs []string
}

// NewTokenGenerator returns a generator starting at 1.
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

func (g *TokenGenerator) next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return g.counter
}

// QueueMeetingIDs makes the next MeetingID calls return ids, in order, before
// falling back to generated values.
func (g *TokenGenerator) QueueMeetingIDs(ids ...string) {
	g.mu.Lock()
	g.meetingIDs = append(g.meetingIDs, ids...)
	g.mu.Unlock()
}

// MeetingID returns "mtg" followed by a 7 digit counter.
func (g *TokenGenerator) MeetingID() string {
	g.mu.Lock()
	if len(g.meetingIDs) > 0 {
		id := g.meetingIDs[0]
		g.meetingIDs = g.meetingIDs[1:]
		g.mu.Unlock()
		return id
	}
	g.mu.Unlock()
	return fmt.Sprintf("mtg%07d", g.next())
}

// AdminToken returns a 64 character lowercase hex token.
func (g *TokenGenerator) AdminToken() string {
	return fmt.Sprintf("%064x", g.next())
}

// DeviceToken returns a 32 character URL-safe token.
func (g *TokenGenerator) DeviceToken() string {
	return fmt.Sprintf("dev%029d", g.next())
}

// ParticipantID returns a version 4 shaped UUID.
func (g *TokenGenerator) ParticipantID() string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", g.next())
}

// GuestRequestID returns "req_" followed by 16 digits.
func (g *TokenGenerator) GuestRequestID() string {
	return fmt.Sprintf("req_%016d", g.next())
}
