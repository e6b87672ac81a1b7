package application

import (
	"context"
	"fmt"

	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/realtime"
	"github.com/example/meetgrid/internal/slot"
	"github.com/example/meetgrid/internal/token"
)

// ValidateAdmin reports whether adminToken opens the meeting's admin view.
// The only errors are ErrUnauthorized and ErrUnavailable.
func (s *MeetingService) ValidateAdmin(ctx context.Context, meetingID, adminToken string) error {
	if s == nil {
		return fmt.Errorf("MeetingService is nil")
	}
	return s.authorizeAdmin(ctx, meetingID, adminToken)
}

// ToggleFreeze freezes or unfreezes availability changes and returns the new
// status. Finalized meetings cannot be toggled.
func (s *MeetingService) ToggleFreeze(ctx context.Context, meetingID, adminToken string, frozen bool) (status string, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ToggleFreeze",
		"meeting_id", meetingID,
		"frozen", frozen,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to toggle freeze", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting status changed", "status", status)
	}()

	if err = s.authorizeAdmin(ctx, meetingID, adminToken); err != nil {
		return
	}

	next, eventType := persistence.StatusActive, realtime.MeetingUnfrozen
	if frozen {
		next, eventType = persistence.StatusFrozen, realtime.MeetingFrozen
	}
	if err = s.meetings.SetStatus(ctx, meetingID, next); err != nil {
		err = mapMeetingRepoError(err)
		return
	}

	s.publish(ctx, logger, realtime.Event{Type: eventType, MeetingID: meetingID})
	status = string(next)
	return
}

// DeleteParticipant removes a participant and their availability.
func (s *MeetingService) DeleteParticipant(ctx context.Context, meetingID, participantID, adminToken string) (err error) {
	if s == nil {
		return fmt.Errorf("MeetingService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteParticipant",
		"meeting_id", meetingID,
		"participant_id", participantID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete participant", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "participant deleted")
	}()

	if err = s.authorizeAdmin(ctx, meetingID, adminToken); err != nil {
		return err
	}
	if !token.ValidParticipantID(participantID) {
		return ErrNotFound
	}

	removed, err := s.meetings.DeleteParticipant(ctx, meetingID, participantID)
	if err != nil {
		return mapMeetingRepoError(err)
	}

	s.publish(ctx, logger, realtime.Event{
		Type:      realtime.ParticipantRemoved,
		MeetingID: meetingID,
		UserID:    removed.ID,
		Name:      removed.Name,
	})
	return nil
}

// FinalizeMeeting commits slotID as the meeting's chosen time. Finalization is
// terminal: availability, freeze and further finalize calls are rejected
// afterwards.
func (s *MeetingService) FinalizeMeeting(ctx context.Context, meetingID, slotID, adminToken string) (err error) {
	if s == nil {
		return fmt.Errorf("MeetingService is nil")
	}

	logger := s.loggerWith(ctx, "FinalizeMeeting",
		"meeting_id", meetingID,
		"slot_id", slotID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to finalize meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting finalized")
	}()

	if err = s.authorizeAdmin(ctx, meetingID, adminToken); err != nil {
		return err
	}

	meeting, err := s.loadMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if !gridOf(meeting).Contains(slot.ID(slotID)) {
		vErr := &ValidationError{}
		vErr.add("slotId", "slot is not part of the schedule")
		return vErr
	}

	if err = s.meetings.Finalize(ctx, meetingID, slotID); err != nil {
		return mapMeetingRepoError(err)
	}

	s.publish(ctx, logger, realtime.Event{
		Type:      realtime.MeetingFinalized,
		MeetingID: meetingID,
		Slots:     []string{slotID},
	})
	return nil
}
