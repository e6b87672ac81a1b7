package persistence

import (
	"context"
	"time"
)

// MeetingRepository stores meetings with field-scoped writes.
//
// Mutators touch only the fields they name. Writes to the same field are
// conditional at the store so that concurrent callers cannot lose updates;
// writes to different participants never wait on each other. Every method
// treats an expired meeting as missing.
type MeetingRepository interface {
	CreateMeeting(ctx context.Context, meeting Meeting) error
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	GetAdminToken(ctx context.Context, meetingID string) (string, error)
	GetDeviceToken(ctx context.Context, meetingID, participantID string) (*string, error)

	// ClaimParticipant binds token only while the participant is unclaimed.
	ClaimParticipant(ctx context.Context, meetingID, participantID, token string) (Participant, error)
	// SetDeviceToken overwrites or clears the participant's token unconditionally.
	SetDeviceToken(ctx context.Context, meetingID, participantID string, token *string) (Participant, error)
	// ReplaceSlots swaps the participant's slot set while the meeting is active
	// and deviceToken is still the participant's bound token.
	ReplaceSlots(ctx context.Context, meetingID, participantID, deviceToken string, slots []string) error
	DeleteParticipant(ctx context.Context, meetingID, participantID string) (Participant, error)

	SetStatus(ctx context.Context, meetingID string, status MeetingStatus) error
	// Finalize writes the finalized status together with the chosen slot.
	Finalize(ctx context.Context, meetingID, slotID string) error

	AppendGuestRequest(ctx context.Context, meetingID string, request GuestRequest) error
	// ApproveGuestRequest removes the request and adds it as an approved participant in one step.
	ApproveGuestRequest(ctx context.Context, meetingID, requestID, participantID string) (Participant, error)
	RemoveGuestRequest(ctx context.Context, meetingID, requestID string) (GuestRequest, error)

	DeleteExpiredMeetings(ctx context.Context, reference time.Time) (int, error)
}
