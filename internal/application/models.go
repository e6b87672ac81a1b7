package application

import "time"

// CreateMeetingInput captures caller provided meeting fields.
type CreateMeetingInput struct {
	Title            string
	Description      *string
	Dates            []string
	ParticipantNames []string
	AllowGuest       bool
	StartHour        *int
	EndHour          *int
}

// CreateMeetingResult is returned once to the meeting creator. AdminToken is
// never retrievable afterwards.
type CreateMeetingResult struct {
	MeetingID  string
	AdminToken string
	ShareURL   string
}

// ClaimResult carries the device token bound by a claim.
type ClaimResult struct {
	DeviceToken string
	Participant PublicParticipant
}

// PublicMeeting is the view of a meeting that is safe to return to any caller.
type PublicMeeting struct {
	ID            string               `json:"id"`
	Meta          PublicMeta           `json:"meta"`
	Schedule      PublicSchedule       `json:"schedule"`
	Participants  []PublicParticipant  `json:"participants"`
	GuestRequests []PublicGuestRequest `json:"guestRequests"`
}

// PublicMeta is meeting metadata without the admin token.
type PublicMeta struct {
	Title           string    `json:"title"`
	Description     *string   `json:"description,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	Status          string    `json:"status"`
	AllowGuest      bool      `json:"allowGuest"`
	FinalizedSlotID *string   `json:"finalizedSlotId,omitempty"`
}

// PublicSchedule describes the availability grid.
type PublicSchedule struct {
	Type      string   `json:"type"`
	Dates     []string `json:"dates"`
	StartHour int      `json:"startHour"`
	EndHour   int      `json:"endHour"`
}

// PublicParticipant replaces the device token with a claimed flag.
type PublicParticipant struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	IsClaimed bool     `json:"isClaimed"`
	Slots     []string `json:"slots"`
}

// PublicGuestRequest exposes only what an admin needs to decide on a request.
type PublicGuestRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SlotScore is agreement on one slot.
type SlotScore struct {
	SlotID    string   `json:"slotId"`
	Count     int      `json:"count"`
	Attendees []string `json:"attendees"`
	Missing   []string `json:"missing"`
	Ratio     float64  `json:"ratio"`
}

// BestSlots ranks a meeting's grid.
type BestSlots struct {
	Total   int         `json:"total"`
	Perfect []SlotScore `json:"perfect"`
	Best    []SlotScore `json:"best"`
	Top     []SlotScore `json:"top"`
}

// HeatmapCell is one grid cell with the names that selected it.
type HeatmapCell struct {
	SlotID string   `json:"slotId"`
	Count  int      `json:"count"`
	Names  []string `json:"names"`
}
