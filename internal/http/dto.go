package http

import "github.com/example/meetgrid/internal/application"

type createMeetingRequest struct {
	Title            string   `json:"title"`
	Description      *string  `json:"description"`
	Dates            []string `json:"dates"`
	ParticipantNames []string `json:"participantNames"`
	AllowGuest       bool     `json:"allowGuest"`
	StartHour        *int     `json:"startHour"`
	EndHour          *int     `json:"endHour"`
}

func (r createMeetingRequest) toInput() application.CreateMeetingInput {
	return application.CreateMeetingInput{
		Title:            r.Title,
		Description:      r.Description,
		Dates:            r.Dates,
		ParticipantNames: r.ParticipantNames,
		AllowGuest:       r.AllowGuest,
		StartHour:        r.StartHour,
		EndHour:          r.EndHour,
	}
}

type createMeetingResponse struct {
	MeetingID  string `json:"meetingId"`
	AdminToken string `json:"adminToken"`
	ShareURL   string `json:"shareUrl"`
}

type claimResponse struct {
	DeviceToken string                        `json:"deviceToken"`
	Participant application.PublicParticipant `json:"participant"`
}

type sessionRequest struct {
	DeviceToken string `json:"deviceToken"`
}

type sessionResponse struct {
	Valid bool `json:"valid"`
}

type slotsRequest struct {
	Slots []string `json:"slots"`
}

type slotsResponse struct {
	Slots []string `json:"slots"`
}

type guestRequest struct {
	Name string `json:"name"`
}

type guestResponse struct {
	RequestID string `json:"requestId"`
}

type participantResponse struct {
	Participant application.PublicParticipant `json:"participant"`
}

type statusRequest struct {
	Frozen bool `json:"frozen"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type finalizeRequest struct {
	SlotID string `json:"slotId"`
}

type finalizeResponse struct {
	Status          string `json:"status"`
	FinalizedSlotID string `json:"finalizedSlotId"`
}

type heatmapResponse struct {
	Cells []application.HeatmapCell `json:"cells"`
}
