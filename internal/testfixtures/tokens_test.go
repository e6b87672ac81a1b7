package testfixtures

import (
	"testing"

	"github.com/example/meetgrid/internal/token"
)

func TestTokenGeneratorPassesValidators(t *testing.T) {
	gen := NewTokenGenerator()

	checks := []struct {
		name  string
		value string
		valid func(string) bool
	}{
		{"meeting", gen.MeetingID(), token.ValidMeetingID},
		{"admin", gen.AdminToken(), token.ValidAdminToken},
		{"device", gen.DeviceToken(), token.ValidDeviceToken},
		{"participant", gen.ParticipantID(), token.ValidParticipantID},
		{"guest request", gen.GuestRequestID(), token.ValidGuestRequestID},
	}
	for _, c := range checks {
		if !c.valid(c.value) {
			t.Fatalf("%s token %q rejected by validator", c.name, c.value)
		}
	}
}

func TestTokenGeneratorQueuedMeetingIDs(t *testing.T) {
	gen := NewTokenGenerator()
	gen.QueueMeetingIDs("aaaaaaaaaa", "bbbbbbbbbb")

	if got := gen.MeetingID(); got != "aaaaaaaaaa" {
		t.Fatalf("expected first queued id, got %q", got)
	}
	if got := gen.MeetingID(); got != "bbbbbbbbbb" {
		t.Fatalf("expected second queued id, got %q", got)
	}
	if got := gen.MeetingID(); got != "mtg0000001" {
		t.Fatalf("expected generated id after queue drained, got %q", got)
	}
}
