package application

import (
	"github.com/example/meetgrid/internal/persistence"
)

// ProjectMeeting strips secrets from a meeting: the admin token is dropped,
// device tokens become IsClaimed and guest requests keep only id and name.
// Participants are listed in join order.
func ProjectMeeting(m persistence.Meeting) PublicMeeting {
	out := PublicMeeting{
		ID: m.ID,
		Meta: PublicMeta{
			Title:      m.Meta.Title,
			CreatedAt:  m.Meta.CreatedAt,
			ExpiresAt:  m.Meta.ExpiresAt,
			Status:     string(m.Meta.Status),
			AllowGuest: m.Meta.AllowGuest,
		},
		Schedule: PublicSchedule{
			Type:      string(m.Schedule.Type),
			Dates:     append([]string{}, m.Schedule.Dates...),
			StartHour: m.Schedule.StartHour,
			EndHour:   m.Schedule.EndHour,
		},
		Participants:  []PublicParticipant{},
		GuestRequests: []PublicGuestRequest{},
	}
	if m.Meta.Description != nil {
		v := *m.Meta.Description
		out.Meta.Description = &v
	}
	if m.Meta.FinalizedSlotID != nil {
		v := *m.Meta.FinalizedSlotID
		out.Meta.FinalizedSlotID = &v
	}

	for _, p := range m.OrderedParticipants() {
		out.Participants = append(out.Participants, projectParticipant(p))
	}
	for _, r := range m.GuestRequests {
		out.GuestRequests = append(out.GuestRequests, PublicGuestRequest{ID: r.ID, Name: r.Name})
	}
	return out
}

func projectParticipant(p persistence.Participant) PublicParticipant {
	return PublicParticipant{
		ID:        p.ID,
		Name:      p.Name,
		Status:    string(p.Status),
		IsClaimed: p.DeviceToken != nil,
		Slots:     append([]string{}, p.Slots...),
	}
}
