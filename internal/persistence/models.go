package persistence

import (
	"sort"
	"time"
)

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	StatusActive    MeetingStatus = "active"
	StatusFrozen    MeetingStatus = "frozen"
	StatusFinalized MeetingStatus = "finalized"
)

// Valid reports whether s is a known status.
func (s MeetingStatus) Valid() bool {
	switch s {
	case StatusActive, StatusFrozen, StatusFinalized:
		return true
	}
	return false
}

// ParticipantStatus is the admission state of a participant.
type ParticipantStatus string

const (
	ParticipantApproved ParticipantStatus = "approved"
	ParticipantPending  ParticipantStatus = "pending"
)

// ScheduleType describes how the date axis was chosen.
type ScheduleType string

const (
	ScheduleWeekly        ScheduleType = "weekly"
	ScheduleSpecificDates ScheduleType = "specific_dates"
)

// Meeting is the aggregate stored per meeting ID.
type Meeting struct {
	ID            string
	Meta          MeetingMeta
	Schedule      MeetingSchedule
	Participants  map[string]Participant
	GuestRequests []GuestRequest
}

// MeetingMeta carries the meeting's descriptive and lifecycle fields.
type MeetingMeta struct {
	Title           string
	Description     *string
	AdminToken      string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Status          MeetingStatus
	AllowGuest      bool
	FinalizedSlotID *string
}

// MeetingSchedule defines the availability grid axes.
type MeetingSchedule struct {
	Type      ScheduleType
	Dates     []string
	StartHour int
	EndHour   int
}

// Participant is an invited or guest-approved attendee.
type Participant struct {
	ID          string
	Name        string
	Status      ParticipantStatus
	DeviceToken *string
	Slots       []string
	Position    int
}

// GuestRequest is a pending ask-to-join record.
type GuestRequest struct {
	ID                string
	Name              string
	OriginFingerprint string
	RequestedAt       time.Time
}

// Expired reports whether the meeting's retention window has elapsed at now.
func (m Meeting) Expired(now time.Time) bool {
	return !m.Meta.ExpiresAt.After(now)
}

// OrderedParticipants returns participants by join position, then ID.
func (m Meeting) OrderedParticipants() []Participant {
	out := make([]Participant, 0, len(m.Participants))
	for _, p := range m.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NextPosition returns the position a newly added participant should take.
func (m Meeting) NextPosition() int {
	next := 0
	for _, p := range m.Participants {
		if p.Position >= next {
			next = p.Position + 1
		}
	}
	return next
}

// Clone returns a deep copy of the meeting.
func (m Meeting) Clone() Meeting {
	out := m
	out.Meta.Description = cloneStringPtr(m.Meta.Description)
	out.Meta.FinalizedSlotID = cloneStringPtr(m.Meta.FinalizedSlotID)
	out.Schedule.Dates = append([]string(nil), m.Schedule.Dates...)
	out.Participants = make(map[string]Participant, len(m.Participants))
	for id, p := range m.Participants {
		out.Participants[id] = p.Clone()
	}
	out.GuestRequests = append([]GuestRequest(nil), m.GuestRequests...)
	return out
}

// Clone returns a deep copy of the participant.
func (p Participant) Clone() Participant {
	out := p
	out.DeviceToken = cloneStringPtr(p.DeviceToken)
	out.Slots = append([]string{}, p.Slots...)
	return out
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
