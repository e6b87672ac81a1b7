package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist or has expired.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrAlreadyClaimed is returned when a participant already has a bound device token.
	ErrAlreadyClaimed = errors.New("persistence: participant already claimed")
	// ErrMeetingLocked is returned when a slot write targets a meeting that is not active.
	ErrMeetingLocked = errors.New("persistence: meeting not active")
	// ErrTokenMismatch is returned when a slot write carries a device token that is
	// not the one currently bound to the participant.
	ErrTokenMismatch = errors.New("persistence: device token mismatch")
	// ErrMeetingFinalized is returned when a status write targets a finalized meeting.
	ErrMeetingFinalized = errors.New("persistence: meeting finalized")
)
