package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/realtime"
	"github.com/example/meetgrid/internal/token"
)

// ClaimIdentity binds a fresh device token to an unclaimed participant. Of any
// number of concurrent claims on one participant exactly one succeeds; the
// others get ErrAlreadyClaimed.
func (s *MeetingService) ClaimIdentity(ctx context.Context, meetingID, participantID string) (result ClaimResult, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ClaimIdentity",
		"meeting_id", meetingID,
		"participant_id", participantID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to claim identity", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "identity claimed")
	}()

	if !token.ValidMeetingID(meetingID) || !token.ValidParticipantID(participantID) {
		err = ErrNotFound
		return
	}

	deviceToken := s.tokens.DeviceToken()
	var participant persistence.Participant
	participant, err = s.meetings.ClaimParticipant(ctx, meetingID, participantID, deviceToken)
	if err != nil {
		err = mapMeetingRepoError(err)
		return
	}

	s.publish(ctx, logger, realtime.Event{
		Type:      realtime.ParticipantJoined,
		MeetingID: meetingID,
		UserID:    participant.ID,
		Name:      participant.Name,
	})

	result = ClaimResult{DeviceToken: deviceToken, Participant: projectParticipant(participant)}
	return
}

// ForceClaimIdentity binds a fresh device token whether or not the participant
// is already claimed, evicting any previous holder. It requires no proof of
// the previous binding.
func (s *MeetingService) ForceClaimIdentity(ctx context.Context, meetingID, participantID string) (result ClaimResult, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ForceClaimIdentity",
		"meeting_id", meetingID,
		"participant_id", participantID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to force claim identity", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "identity force claimed")
	}()

	if !token.ValidMeetingID(meetingID) || !token.ValidParticipantID(participantID) {
		err = ErrNotFound
		return
	}

	deviceToken := s.tokens.DeviceToken()
	var participant persistence.Participant
	participant, err = s.meetings.SetDeviceToken(ctx, meetingID, participantID, &deviceToken)
	if err != nil {
		err = mapMeetingRepoError(err)
		return
	}

	s.publish(ctx, logger, realtime.Event{
		Type:      realtime.ParticipantJoined,
		MeetingID: meetingID,
		UserID:    participant.ID,
		Name:      participant.Name,
	})

	result = ClaimResult{DeviceToken: deviceToken, Participant: projectParticipant(participant)}
	return
}

// ValidateSession reports whether deviceToken is the one bound to the
// participant. Malformed input and unknown meetings or participants are
// simply invalid; the only error is ErrUnavailable.
func (s *MeetingService) ValidateSession(ctx context.Context, meetingID, participantID, deviceToken string) (bool, error) {
	if !token.ValidMeetingID(meetingID) || !token.ValidParticipantID(participantID) || !token.ValidDeviceToken(deviceToken) {
		return false, nil
	}
	stored, err := s.meetings.GetDeviceToken(ctx, meetingID, participantID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return false, nil
		}
		err = unavailable(err)
		s.loggerWith(ctx, "ValidateSession", "meeting_id", meetingID).
			ErrorContext(ctx, "failed to validate session", "error", err, "error_kind", ErrorKind(err))
		return false, err
	}
	return stored != nil && tokensEqual(*stored, deviceToken), nil
}

// ResetSession clears a participant's device binding so the identity can be
// claimed again.
func (s *MeetingService) ResetSession(ctx context.Context, meetingID, participantID, adminToken string) (err error) {
	if s == nil {
		return fmt.Errorf("MeetingService is nil")
	}

	logger := s.loggerWith(ctx, "ResetSession",
		"meeting_id", meetingID,
		"participant_id", participantID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reset session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session reset")
	}()

	if err = s.authorizeAdmin(ctx, meetingID, adminToken); err != nil {
		return err
	}
	if !token.ValidParticipantID(participantID) {
		return ErrNotFound
	}

	if _, err = s.meetings.SetDeviceToken(ctx, meetingID, participantID, nil); err != nil {
		return mapMeetingRepoError(err)
	}

	s.publish(ctx, logger, realtime.Event{
		Type:      realtime.SessionReset,
		MeetingID: meetingID,
		UserID:    participantID,
	})
	return nil
}
