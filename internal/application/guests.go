package application

import (
	"context"
	"fmt"

	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/ratelimit"
	"github.com/example/meetgrid/internal/realtime"
	"github.com/example/meetgrid/internal/token"
)

// RequestGuestAccess files an ask-to-join request for name. The caller's origin
// is rate limited and stored only as a salted fingerprint.
func (s *MeetingService) RequestGuestAccess(ctx context.Context, meetingID, name, origin string) (requestID string, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RequestGuestAccess", "meeting_id", meetingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to request guest access", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("request_id", requestID).InfoContext(ctx, "guest access requested")
	}()

	name, vErr := validateName("name", name)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var fingerprint string
	if fingerprint, err = s.throttleGuest(ctx, origin); err != nil {
		return
	}

	var meeting persistence.Meeting
	if meeting, err = s.loadMeeting(ctx, meetingID); err != nil {
		return
	}
	if meeting.Meta.Status == persistence.StatusFinalized {
		err = ErrAlreadyFinalized
		return
	}
	if !meeting.Meta.AllowGuest {
		err = ErrGuestsNotAllowed
		return
	}

	request := persistence.GuestRequest{
		ID:                s.tokens.GuestRequestID(),
		Name:              name,
		OriginFingerprint: fingerprint,
		RequestedAt:       s.now().UTC(),
	}
	if err = s.meetings.AppendGuestRequest(ctx, meetingID, request); err != nil {
		err = mapMeetingRepoError(err)
		return
	}

	s.publish(ctx, logger, realtime.Event{
		Type:      realtime.GuestRequested,
		MeetingID: meetingID,
		RequestID: request.ID,
		Name:      request.Name,
	})
	requestID = request.ID
	return
}

func (s *MeetingService) throttleGuest(ctx context.Context, origin string) (string, error) {
	if s.limiter == nil {
		return "", nil
	}
	fingerprint, err := s.limiter.Fingerprint(ctx, origin)
	if err != nil {
		return "", unavailable(err)
	}
	decision, err := s.limiter.Allow(ctx, ratelimit.ClassGuestRequest, fingerprint)
	if err != nil {
		return "", unavailable(err)
	}
	if !decision.Allowed {
		return "", &RateLimitedError{RetryAfter: decision.RetryAfter}
	}
	return fingerprint, nil
}

// ApproveGuest turns a pending guest request into an approved, unclaimed
// participant with no slots.
func (s *MeetingService) ApproveGuest(ctx context.Context, meetingID, requestID, adminToken string) (participant PublicParticipant, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ApproveGuest",
		"meeting_id", meetingID,
		"request_id", requestID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to approve guest", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("participant_id", participant.ID).InfoContext(ctx, "guest approved")
	}()

	if err = s.authorizeAdmin(ctx, meetingID, adminToken); err != nil {
		return
	}
	if !token.ValidGuestRequestID(requestID) {
		err = ErrNotFound
		return
	}

	var approved persistence.Participant
	approved, err = s.meetings.ApproveGuestRequest(ctx, meetingID, requestID, s.tokens.ParticipantID())
	if err != nil {
		err = mapMeetingRepoError(err)
		return
	}

	s.publish(ctx, logger, realtime.Event{
		Type:      realtime.GuestApproved,
		MeetingID: meetingID,
		RequestID: requestID,
		UserID:    approved.ID,
		Name:      approved.Name,
	})
	participant = projectParticipant(approved)
	return
}

// RejectGuest discards a pending guest request.
func (s *MeetingService) RejectGuest(ctx context.Context, meetingID, requestID, adminToken string) (err error) {
	if s == nil {
		return fmt.Errorf("MeetingService is nil")
	}

	logger := s.loggerWith(ctx, "RejectGuest",
		"meeting_id", meetingID,
		"request_id", requestID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reject guest", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "guest rejected")
	}()

	if err = s.authorizeAdmin(ctx, meetingID, adminToken); err != nil {
		return err
	}
	if !token.ValidGuestRequestID(requestID) {
		return ErrNotFound
	}

	if _, err = s.meetings.RemoveGuestRequest(ctx, meetingID, requestID); err != nil {
		return mapMeetingRepoError(err)
	}

	s.publish(ctx, logger, realtime.Event{
		Type:      realtime.GuestRejected,
		MeetingID: meetingID,
		RequestID: requestID,
	})
	return nil
}
