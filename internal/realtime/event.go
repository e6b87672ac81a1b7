// Package realtime carries meeting change notifications between the processes
// that mutate meetings and the relay that pushes them to live viewers.
//
// Events are invalidation signals. A viewer that receives one re-reads the
// meeting; it never applies the event as a delta. Delivery is best effort and
// a viewer that was offline simply misses it.
package realtime

import "context"

// Channel is the pub/sub channel shared by every meeting.
const Channel = "meeting_updates"

// EventType names what changed.
type EventType string

const (
	SlotsUpdated       EventType = "SLOTS_UPDATED"
	ParticipantJoined  EventType = "PARTICIPANT_JOINED"
	ParticipantRemoved EventType = "PARTICIPANT_REMOVED"
	GuestRequested     EventType = "GUEST_REQUEST"
	GuestApproved      EventType = "GUEST_APPROVED"
	GuestRejected      EventType = "GUEST_REJECTED"
	MeetingFrozen      EventType = "MEETING_FROZEN"
	MeetingUnfrozen    EventType = "MEETING_UNFROZEN"
	SessionReset       EventType = "SESSION_RESET"
	MeetingFinalized   EventType = "MEETING_FINALIZED"
)

// Event is the envelope published for every mutation.
type Event struct {
	Type      EventType `json:"type" cbor:"1,keyasint"`
	MeetingID string    `json:"meetingId" cbor:"2,keyasint"`
	UserID    string    `json:"userId,omitempty" cbor:"3,keyasint,omitempty"`
	Name      string    `json:"name,omitempty" cbor:"4,keyasint,omitempty"`
	Slots     []string  `json:"slots,omitempty" cbor:"5,keyasint,omitempty"`
	RequestID string    `json:"requestId,omitempty" cbor:"6,keyasint,omitempty"`
}

// Payload is the event as pushed to a room: the meeting ID is implied by the
// room and left out. Slot events always carry their slot list, even when empty.
func (e Event) Payload() map[string]any {
	out := map[string]any{"type": string(e.Type)}
	if e.UserID != "" {
		out["userId"] = e.UserID
	}
	if e.Name != "" {
		out["name"] = e.Name
	}
	if e.RequestID != "" {
		out["requestId"] = e.RequestID
	}
	if len(e.Slots) > 0 || e.Type == SlotsUpdated || e.Type == MeetingFinalized {
		slots := e.Slots
		if slots == nil {
			slots = []string{}
		}
		out["slots"] = slots
	}
	return out
}

// Publisher sends events to every subscriber.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber opens a stream of every published event.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a live event stream. Events is closed after Close or when
// the underlying transport ends.
type Subscription interface {
	Events() <-chan Event
	Close() error
}
