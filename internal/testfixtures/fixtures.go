package testfixtures

import (
	"fmt"
	"time"

	"github.com/example/meetgrid/internal/persistence"
)

var referenceTime = time.Date(2026, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Fixed identifiers used by MeetingFixture. They pass the production validators.
const (
	FixtureMeetingID  = "fixtureM01"
	FixtureAdminToken = "adadadadadadadadadadadadadadadadadadadadadadadadadadadadadadadad"
)

// FixtureParticipantID returns the identifier MeetingFixture gives its i-th participant.
func FixtureParticipantID(i int) string {
	return fmt.Sprintf("00000000-0000-4000-a000-%012d", i)
}

// FixtureDeviceToken returns a valid device token unique to i.
func FixtureDeviceToken(i int) string {
	return fmt.Sprintf("fixturedevice%019d", i)
}

// MeetingFixture builds a meeting in a known state.
type MeetingFixture struct {
	ID            string
	Title         string
	Description   *string
	AdminToken    string
	CreatedAt     time.Time
	Status        persistence.MeetingStatus
	AllowGuest    bool
	FinalizedSlot *string
	Dates         []string
	StartHour     int
	EndHour       int
	Participants  []persistence.Participant
	GuestRequests []persistence.GuestRequest
}

// MeetingOption mutates a MeetingFixture during construction.
type MeetingOption func(*MeetingFixture)

// NewMeetingFixture returns an active one-day meeting from 9 to 11 with
// unclaimed participants A, B and C, unless overridden by opts.
func NewMeetingFixture(opts ...MeetingOption) MeetingFixture {
	f := MeetingFixture{
		ID:         FixtureMeetingID,
		Title:      "Team sync",
		AdminToken: FixtureAdminToken,
		CreatedAt:  ReferenceTime(),
		Status:     persistence.StatusActive,
		Dates:      []string{"2026-01-05"},
		StartHour:  9,
		EndHour:    11,
	}
	WithParticipants("A", "B", "C")(&f)
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// WithMeetingID overrides the meeting identifier.
func WithMeetingID(id string) MeetingOption {
	return func(f *MeetingFixture) {
		f.ID = id
	}
}

// WithCreatedAt overrides the creation time; expiry follows a week later.
func WithCreatedAt(t time.Time) MeetingOption {
	return func(f *MeetingFixture) {
		f.CreatedAt = t
	}
}

// WithStatus overrides the lifecycle state.
func WithStatus(status persistence.MeetingStatus) MeetingOption {
	return func(f *MeetingFixture) {
		f.Status = status
	}
}

// WithFinalizedSlot marks the meeting finalized on slotID.
func WithFinalizedSlot(slotID string) MeetingOption {
	return func(f *MeetingFixture) {
		f.Status = persistence.StatusFinalized
		f.FinalizedSlot = &slotID
	}
}

// WithAllowGuest toggles guest admission.
func WithAllowGuest(allow bool) MeetingOption {
	return func(f *MeetingFixture) {
		f.AllowGuest = allow
	}
}

// WithSchedule overrides the grid.
func WithSchedule(dates []string, startHour, endHour int) MeetingOption {
	return func(f *MeetingFixture) {
		f.Dates = append([]string(nil), dates...)
		f.StartHour = startHour
		f.EndHour = endHour
	}
}

// WithParticipants replaces the participants with unclaimed ones named names.
func WithParticipants(names ...string) MeetingOption {
	return func(f *MeetingFixture) {
		f.Participants = make([]persistence.Participant, len(names))
		for i, name := range names {
			f.Participants[i] = persistence.Participant{
				ID:       FixtureParticipantID(i),
				Name:     name,
				Status:   persistence.ParticipantApproved,
				Slots:    []string{},
				Position: i,
			}
		}
	}
}

// WithClaimed binds FixtureDeviceToken(i) to the i-th participant.
func WithClaimed(i int) MeetingOption {
	return func(f *MeetingFixture) {
		token := FixtureDeviceToken(i)
		f.Participants[i].DeviceToken = &token
	}
}

// WithSlots sets the i-th participant's selection.
func WithSlots(i int, slots ...string) MeetingOption {
	return func(f *MeetingFixture) {
		f.Participants[i].Slots = append([]string{}, slots...)
	}
}

// WithGuestRequest appends a pending guest request.
func WithGuestRequest(id, name string) MeetingOption {
	return func(f *MeetingFixture) {
		f.GuestRequests = append(f.GuestRequests, persistence.GuestRequest{
			ID:                id,
			Name:              name,
			OriginFingerprint: "fp-" + id,
			RequestedAt:       f.CreatedAt,
		})
	}
}

// Persistence converts the fixture into the stored aggregate.
func (f MeetingFixture) Persistence() persistence.Meeting {
	scheduleType := persistence.ScheduleSpecificDates
	if len(f.Dates) == 7 {
		scheduleType = persistence.ScheduleWeekly
	}
	m := persistence.Meeting{
		ID: f.ID,
		Meta: persistence.MeetingMeta{
			Title:           f.Title,
			Description:     f.Description,
			AdminToken:      f.AdminToken,
			CreatedAt:       f.CreatedAt,
			ExpiresAt:       f.CreatedAt.Add(7 * 24 * time.Hour),
			Status:          f.Status,
			AllowGuest:      f.AllowGuest,
			FinalizedSlotID: f.FinalizedSlot,
		},
		Schedule: persistence.MeetingSchedule{
			Type:      scheduleType,
			Dates:     f.Dates,
			StartHour: f.StartHour,
			EndHour:   f.EndHour,
		},
		Participants:  make(map[string]persistence.Participant, len(f.Participants)),
		GuestRequests: append([]persistence.GuestRequest{}, f.GuestRequests...),
	}
	for _, p := range f.Participants {
		m.Participants[p.ID] = p
	}
	return m.Clone()
}
