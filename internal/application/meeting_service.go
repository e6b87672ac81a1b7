package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/ratelimit"
	"github.com/example/meetgrid/internal/realtime"
	"github.com/example/meetgrid/internal/scheduler"
	"github.com/example/meetgrid/internal/slot"
	"github.com/example/meetgrid/internal/token"
)

const (
	// MeetingRetention is how long a meeting lives after creation.
	MeetingRetention = 7 * 24 * time.Hour
	// maxCreateAttempts bounds retries on meeting ID collisions.
	maxCreateAttempts = 5
)

// TokenSource issues identifiers and secrets.
type TokenSource interface {
	MeetingID() string
	AdminToken() string
	DeviceToken() string
	ParticipantID() string
	GuestRequestID() string
}

// OriginLimiter fingerprints and throttles client origins.
type OriginLimiter interface {
	Fingerprint(ctx context.Context, origin string) (string, error)
	Allow(ctx context.Context, class ratelimit.Class, fingerprint string) (ratelimit.Decision, error)
}

// MeetingServiceDeps captures the collaborators of a MeetingService.
type MeetingServiceDeps struct {
	Meetings  persistence.MeetingRepository
	Tokens    TokenSource
	Events    realtime.Publisher
	Limiter   OriginLimiter
	Now       func() time.Time
	PublicURL string
	Logger    *slog.Logger
}

// MeetingService orchestrates validation, token checks, persistence and change
// notifications for meetings.
type MeetingService struct {
	meetings  persistence.MeetingRepository
	tokens    TokenSource
	events    realtime.Publisher
	limiter   OriginLimiter
	now       func() time.Time
	publicURL string
	logger    *slog.Logger
}

// NewMeetingService constructs a meeting service. Tokens default to a
// crypto/rand generator and Now to time.Now. A nil Events or Limiter disables
// notifications or rate limiting.
func NewMeetingService(deps MeetingServiceDeps) *MeetingService {
	tokens := deps.Tokens
	if tokens == nil {
		tokens = token.NewGenerator()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &MeetingService{
		meetings:  deps.Meetings,
		tokens:    tokens,
		events:    deps.Events,
		limiter:   deps.Limiter,
		now:       now,
		publicURL: strings.TrimRight(deps.PublicURL, "/"),
		logger:    defaultLogger(deps.Logger),
	}
}

func (s *MeetingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MeetingService", operation, attrs...)
}

// publish sends a change notification. The mutation is already committed, so
// a failure is logged and not returned.
func (s *MeetingService) publish(ctx context.Context, logger *slog.Logger, event realtime.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "event_type", string(event.Type), "error", err)
	}
}

// CreateMeeting validates input and stores a new meeting with its invited
// participants.
func (s *MeetingService) CreateMeeting(ctx context.Context, input CreateMeetingInput) (result CreateMeetingResult, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateMeeting")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("meeting_id", result.MeetingID).InfoContext(ctx, "meeting created")
	}()

	normalized, vErr := validateCreateInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now().UTC()
	meeting := persistence.Meeting{
		Meta: persistence.MeetingMeta{
			Title:       normalized.Title,
			Description: normalized.Description,
			AdminToken:  s.tokens.AdminToken(),
			CreatedAt:   createdAt,
			ExpiresAt:   createdAt.Add(MeetingRetention),
			Status:      persistence.StatusActive,
			AllowGuest:  normalized.AllowGuest,
		},
		Schedule: persistence.MeetingSchedule{
			Type:      scheduleType(len(normalized.Dates)),
			Dates:     normalized.Dates,
			StartHour: *normalized.StartHour,
			EndHour:   *normalized.EndHour,
		},
		Participants:  make(map[string]persistence.Participant, len(normalized.ParticipantNames)),
		GuestRequests: []persistence.GuestRequest{},
	}
	for i, name := range normalized.ParticipantNames {
		id := s.tokens.ParticipantID()
		meeting.Participants[id] = persistence.Participant{
			ID:       id,
			Name:     name,
			Status:   persistence.ParticipantApproved,
			Slots:    []string{},
			Position: i,
		}
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		meeting.ID = s.tokens.MeetingID()
		err = s.meetings.CreateMeeting(ctx, meeting)
		if err == nil {
			break
		}
		if !errors.Is(err, persistence.ErrDuplicate) {
			err = unavailable(err)
			return
		}
		logger.WarnContext(ctx, "meeting id collision", "attempt", attempt)
	}
	if err != nil {
		err = fmt.Errorf("%w after %d attempts", ErrCreation, maxCreateAttempts)
		return
	}

	result = CreateMeetingResult{
		MeetingID:  meeting.ID,
		AdminToken: meeting.Meta.AdminToken,
		ShareURL:   s.publicURL + "/m/" + meeting.ID,
	}
	return
}

// GetMeeting returns the public projection of a meeting.
func (s *MeetingService) GetMeeting(ctx context.Context, meetingID string) (PublicMeeting, error) {
	meeting, err := s.loadMeeting(ctx, meetingID)
	if err != nil {
		return PublicMeeting{}, err
	}
	return ProjectMeeting(meeting), nil
}

// BestSlots ranks the grid by how many approved participants selected each slot.
func (s *MeetingService) BestSlots(ctx context.Context, meetingID string) (BestSlots, error) {
	meeting, err := s.loadMeeting(ctx, meetingID)
	if err != nil {
		return BestSlots{}, err
	}
	ranking := scheduler.Rank(gridOf(meeting), votersOf(meeting))
	return BestSlots{
		Total:   ranking.Total,
		Perfect: slotScores(ranking.Perfect),
		Best:    slotScores(ranking.Best),
		Top:     slotScores(ranking.Top),
	}, nil
}

// Heatmap returns per-slot counts for the whole grid.
func (s *MeetingService) Heatmap(ctx context.Context, meetingID string) ([]HeatmapCell, error) {
	meeting, err := s.loadMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	cells := scheduler.Heatmap(gridOf(meeting), votersOf(meeting))
	out := make([]HeatmapCell, len(cells))
	for i, c := range cells {
		out[i] = HeatmapCell{SlotID: string(c.Slot), Count: c.Count, Names: c.Names}
	}
	return out, nil
}

func (s *MeetingService) loadMeeting(ctx context.Context, meetingID string) (persistence.Meeting, error) {
	if !token.ValidMeetingID(meetingID) {
		return persistence.Meeting{}, ErrNotFound
	}
	meeting, err := s.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		return persistence.Meeting{}, mapMeetingRepoError(err)
	}
	return meeting, nil
}

// authorizeAdmin checks adminToken against the stored one. A missing meeting
// and a wrong token are indistinguishable to the caller.
func (s *MeetingService) authorizeAdmin(ctx context.Context, meetingID, adminToken string) error {
	if !token.ValidMeetingID(meetingID) || !token.ValidAdminToken(adminToken) {
		return ErrUnauthorized
	}
	stored, err := s.meetings.GetAdminToken(ctx, meetingID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrUnauthorized
		}
		return unavailable(err)
	}
	if !tokensEqual(stored, adminToken) {
		return ErrUnauthorized
	}
	return nil
}

func tokensEqual(stored, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func mapMeetingRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrAlreadyClaimed):
		return ErrAlreadyClaimed
	case errors.Is(err, persistence.ErrTokenMismatch):
		return ErrUnauthorized
	case errors.Is(err, persistence.ErrMeetingLocked):
		return ErrMeetingFrozen
	case errors.Is(err, persistence.ErrMeetingFinalized):
		return ErrAlreadyFinalized
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrCreation, err)
	}
	return unavailable(err)
}

func scheduleType(dateCount int) persistence.ScheduleType {
	if dateCount == 7 {
		return persistence.ScheduleWeekly
	}
	return persistence.ScheduleSpecificDates
}

func gridOf(m persistence.Meeting) slot.Grid {
	return slot.Grid{Days: len(m.Schedule.Dates), StartHour: m.Schedule.StartHour, EndHour: m.Schedule.EndHour}
}

func votersOf(m persistence.Meeting) []scheduler.Voter {
	participants := m.OrderedParticipants()
	voters := make([]scheduler.Voter, 0, len(participants))
	for _, p := range participants {
		if p.Status != persistence.ParticipantApproved {
			continue
		}
		voters = append(voters, scheduler.Voter{ID: p.ID, Name: p.Name, Slots: p.Slots})
	}
	return voters
}

func slotScores(scores []scheduler.Score) []SlotScore {
	out := make([]SlotScore, len(scores))
	for i, sc := range scores {
		out[i] = SlotScore{
			SlotID:    string(sc.Slot),
			Count:     sc.Count,
			Attendees: sc.Attendees,
			Missing:   sc.Missing,
			Ratio:     sc.Ratio,
		}
	}
	return out
}
