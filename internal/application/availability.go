package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/realtime"
	"github.com/example/meetgrid/internal/slot"
	"github.com/example/meetgrid/internal/token"
)

// maxRejectedSlotsReported caps the slot identifiers echoed in a validation message.
const maxRejectedSlotsReported = 5

// UpdateAvailability replaces the participant's selected slots. The device
// token must match the participant's binding; any mismatch, including an
// unknown meeting or participant, is ErrUnauthorized. Frozen and finalized
// meetings reject the write with ErrMeetingFrozen.
func (s *MeetingService) UpdateAvailability(ctx context.Context, meetingID, participantID, deviceToken string, slots []string) (stored []string, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateAvailability",
		"meeting_id", meetingID,
		"participant_id", participantID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("slot_count", len(stored)).InfoContext(ctx, "availability updated")
	}()

	if !token.ValidMeetingID(meetingID) || !token.ValidParticipantID(participantID) || !token.ValidDeviceToken(deviceToken) {
		err = ErrUnauthorized
		return
	}

	var meeting persistence.Meeting
	meeting, err = s.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
			return
		}
		err = mapMeetingRepoError(err)
		return
	}
	participant, ok := meeting.Participants[participantID]
	if !ok || participant.DeviceToken == nil || !tokensEqual(*participant.DeviceToken, deviceToken) {
		err = ErrUnauthorized
		return
	}
	if meeting.Meta.Status != persistence.StatusActive {
		err = ErrMeetingFrozen
		return
	}

	ids, rejected := gridOf(meeting).Normalize(slots)
	if len(rejected) > 0 {
		vErr := &ValidationError{}
		vErr.add("slots", "slots outside the schedule: "+summarizeRejected(rejected))
		err = vErr
		return
	}
	stored = slot.Strings(ids)

	// The store re-checks the binding so a session reset or force claim that
	// lands after the read above still rejects this write.
	if err = s.meetings.ReplaceSlots(ctx, meetingID, participantID, deviceToken, stored); err != nil {
		stored = nil
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
			return
		}
		err = mapMeetingRepoError(err)
		return
	}

	s.publish(ctx, logger, realtime.Event{
		Type:      realtime.SlotsUpdated,
		MeetingID: meetingID,
		UserID:    participantID,
		Slots:     stored,
	})
	return
}

func summarizeRejected(rejected []string) string {
	shown := rejected
	if len(shown) > maxRejectedSlotsReported {
		shown = shown[:maxRejectedSlotsReported]
	}
	quoted := make([]string, len(shown))
	for i, r := range shown {
		if runes := []rune(r); len(runes) > 16 {
			r = string(runes[:16])
		}
		quoted[i] = fmt.Sprintf("%q", r)
	}
	summary := strings.Join(quoted, ", ")
	if extra := len(rejected) - len(shown); extra > 0 {
		summary += fmt.Sprintf(" and %d more", extra)
	}
	return summary
}
