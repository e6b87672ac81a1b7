package mongo

import (
	"time"

	"github.com/example/meetgrid/internal/persistence"
)

// meetingDoc is the stored shape of a meeting: one document per meeting with
// participants keyed by ID so each can be updated by path.
type meetingDoc struct {
	ID            string                    `bson:"_id"`
	Meta          metaDoc                   `bson:"meta"`
	Schedule      scheduleDoc               `bson:"schedule"`
	Participants  map[string]participantDoc `bson:"participants"`
	GuestRequests []guestRequestDoc         `bson:"guestRequests"`
}

type metaDoc struct {
	Title           string    `bson:"title"`
	Description     *string   `bson:"description,omitempty"`
	AdminToken      string    `bson:"adminToken"`
	CreatedAt       time.Time `bson:"createdAt"`
	ExpiresAt       time.Time `bson:"expiresAt"`
	Status          string    `bson:"status"`
	AllowGuest      bool      `bson:"allowGuest"`
	FinalizedSlotID *string   `bson:"finalizedSlotId,omitempty"`
}

type scheduleDoc struct {
	Type      string   `bson:"type"`
	Dates     []string `bson:"dates"`
	StartHour int      `bson:"startHour"`
	EndHour   int      `bson:"endHour"`
}

type participantDoc struct {
	Name        string   `bson:"name"`
	Status      string   `bson:"status"`
	DeviceToken *string  `bson:"deviceToken"`
	Slots       []string `bson:"slots"`
	Position    int      `bson:"position"`
}

type guestRequestDoc struct {
	ID                string    `bson:"id"`
	Name              string    `bson:"name"`
	OriginFingerprint string    `bson:"originFingerprint"`
	RequestedAt       time.Time `bson:"requestedAt"`
}

func toDoc(m persistence.Meeting) meetingDoc {
	m = m.Clone()
	doc := meetingDoc{
		ID: m.ID,
		Meta: metaDoc{
			Title:           m.Meta.Title,
			Description:     m.Meta.Description,
			AdminToken:      m.Meta.AdminToken,
			CreatedAt:       m.Meta.CreatedAt.UTC(),
			ExpiresAt:       m.Meta.ExpiresAt.UTC(),
			Status:          string(m.Meta.Status),
			AllowGuest:      m.Meta.AllowGuest,
			FinalizedSlotID: m.Meta.FinalizedSlotID,
		},
		Schedule: scheduleDoc{
			Type:      string(m.Schedule.Type),
			Dates:     nonNil(m.Schedule.Dates),
			StartHour: m.Schedule.StartHour,
			EndHour:   m.Schedule.EndHour,
		},
		Participants:  make(map[string]participantDoc, len(m.Participants)),
		GuestRequests: make([]guestRequestDoc, 0, len(m.GuestRequests)),
	}
	if doc.Meta.Status == "" {
		doc.Meta.Status = string(persistence.StatusActive)
	}
	for id, p := range m.Participants {
		doc.Participants[id] = toParticipantDoc(p)
	}
	for _, g := range m.GuestRequests {
		doc.GuestRequests = append(doc.GuestRequests, guestRequestDoc{
			ID:                g.ID,
			Name:              g.Name,
			OriginFingerprint: g.OriginFingerprint,
			RequestedAt:       g.RequestedAt.UTC(),
		})
	}
	return doc
}

func toParticipantDoc(p persistence.Participant) participantDoc {
	status := string(p.Status)
	if status == "" {
		status = string(persistence.ParticipantApproved)
	}
	return participantDoc{
		Name:        p.Name,
		Status:      status,
		DeviceToken: p.DeviceToken,
		Slots:       nonNil(p.Slots),
		Position:    p.Position,
	}
}

func (d meetingDoc) meeting() persistence.Meeting {
	m := persistence.Meeting{
		ID: d.ID,
		Meta: persistence.MeetingMeta{
			Title:           d.Meta.Title,
			Description:     d.Meta.Description,
			AdminToken:      d.Meta.AdminToken,
			CreatedAt:       d.Meta.CreatedAt.UTC(),
			ExpiresAt:       d.Meta.ExpiresAt.UTC(),
			Status:          persistence.MeetingStatus(d.Meta.Status),
			AllowGuest:      d.Meta.AllowGuest,
			FinalizedSlotID: d.Meta.FinalizedSlotID,
		},
		Schedule: persistence.MeetingSchedule{
			Type:      persistence.ScheduleType(d.Schedule.Type),
			Dates:     d.Schedule.Dates,
			StartHour: d.Schedule.StartHour,
			EndHour:   d.Schedule.EndHour,
		},
		Participants: make(map[string]persistence.Participant, len(d.Participants)),
	}
	for id, p := range d.Participants {
		m.Participants[id] = p.participant(id)
	}
	for _, g := range d.GuestRequests {
		m.GuestRequests = append(m.GuestRequests, g.guestRequest())
	}
	return m
}

func (p participantDoc) participant(id string) persistence.Participant {
	return persistence.Participant{
		ID:          id,
		Name:        p.Name,
		Status:      persistence.ParticipantStatus(p.Status),
		DeviceToken: p.DeviceToken,
		Slots:       nonNil(p.Slots),
		Position:    p.Position,
	}
}

func (g guestRequestDoc) guestRequest() persistence.GuestRequest {
	return persistence.GuestRequest{
		ID:                g.ID,
		Name:              g.Name,
		OriginFingerprint: g.OriginFingerprint,
		RequestedAt:       g.RequestedAt.UTC(),
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
