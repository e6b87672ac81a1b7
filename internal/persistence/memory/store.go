// Package memory provides an in-process MeetingRepository.
//
// Each meeting entry guards its structure (meta, schedule, participant
// membership, guest requests) with a read-write lock and each participant
// record carries its own mutex, so writes to different participants of the
// same meeting proceed in parallel while writes to the same participant are
// serialized. Status changes take the entry's write lock, which orders them
// against in-flight slot writes.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/meetgrid/internal/persistence"
)

// Store is an in-memory meeting repository.
type Store struct {
	mu       sync.RWMutex
	meetings map[string]*entry
	now      func() time.Time
}

type entry struct {
	mu            sync.RWMutex
	id            string
	meta          persistence.MeetingMeta
	schedule      persistence.MeetingSchedule
	participants  map[string]*record
	guestRequests []persistence.GuestRequest
}

type record struct {
	mu          sync.Mutex
	participant persistence.Participant
}

var _ persistence.MeetingRepository = (*Store)(nil)

// New returns an empty store. now defaults to time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{meetings: make(map[string]*entry), now: now}
}

// Close releases resources held by the store. No-op for the in-memory implementation.
func (s *Store) Close() error {
	return nil
}

// CreateMeeting stores a new meeting, refusing to overwrite a live one.
func (s *Store) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.meetings[meeting.ID]; ok && !existing.expired(s.now()) {
		return fmt.Errorf("memory: meeting %s: %w", meeting.ID, persistence.ErrDuplicate)
	}

	clone := meeting.Clone()
	e := &entry{
		id:            clone.ID,
		meta:          clone.Meta,
		schedule:      clone.Schedule,
		participants:  make(map[string]*record, len(clone.Participants)),
		guestRequests: clone.GuestRequests,
	}
	for id, p := range clone.Participants {
		e.participants[id] = &record{participant: p}
	}
	s.meetings[meeting.ID] = e
	return nil
}

// GetMeeting returns a snapshot of the meeting.
func (s *Store) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return persistence.Meeting{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	m := persistence.Meeting{
		ID:            e.id,
		Meta:          e.meta,
		Schedule:      e.schedule,
		Participants:  make(map[string]persistence.Participant, len(e.participants)),
		GuestRequests: e.guestRequests,
	}
	for pid, rec := range e.participants {
		rec.mu.Lock()
		m.Participants[pid] = rec.participant.Clone()
		rec.mu.Unlock()
	}
	return m.Clone(), nil
}

// GetAdminToken returns only the meeting's admin token.
func (s *Store) GetAdminToken(ctx context.Context, meetingID string) (string, error) {
	e, err := s.lookup(ctx, meetingID)
	if err != nil {
		return "", err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.meta.AdminToken, nil
}

// GetDeviceToken returns the participant's bound token, nil when unclaimed.
func (s *Store) GetDeviceToken(ctx context.Context, meetingID, participantID string) (*string, error) {
	var token *string
	err := s.withParticipant(ctx, meetingID, participantID, func(_ *entry, rec *record) error {
		if rec.participant.DeviceToken != nil {
			v := *rec.participant.DeviceToken
			token = &v
		}
		return nil
	})
	return token, err
}

// ClaimParticipant binds token when the participant has none.
func (s *Store) ClaimParticipant(ctx context.Context, meetingID, participantID, token string) (persistence.Participant, error) {
	var out persistence.Participant
	err := s.withParticipant(ctx, meetingID, participantID, func(_ *entry, rec *record) error {
		if rec.participant.DeviceToken != nil {
			return persistence.ErrAlreadyClaimed
		}
		v := token
		rec.participant.DeviceToken = &v
		out = rec.participant.Clone()
		return nil
	})
	return out, err
}

// SetDeviceToken overwrites or clears the participant's token.
func (s *Store) SetDeviceToken(ctx context.Context, meetingID, participantID string, token *string) (persistence.Participant, error) {
	var out persistence.Participant
	err := s.withParticipant(ctx, meetingID, participantID, func(_ *entry, rec *record) error {
		if token == nil {
			rec.participant.DeviceToken = nil
		} else {
			v := *token
			rec.participant.DeviceToken = &v
		}
		out = rec.participant.Clone()
		return nil
	})
	return out, err
}

// ReplaceSlots swaps the participant's slot set while the meeting is active
// and deviceToken is still bound.
func (s *Store) ReplaceSlots(ctx context.Context, meetingID, participantID, deviceToken string, slots []string) error {
	return s.withParticipant(ctx, meetingID, participantID, func(e *entry, rec *record) error {
		if rec.participant.DeviceToken == nil || *rec.participant.DeviceToken != deviceToken {
			return persistence.ErrTokenMismatch
		}
		if e.meta.Status != persistence.StatusActive {
			return persistence.ErrMeetingLocked
		}
		rec.participant.Slots = append([]string{}, slots...)
		return nil
	})
}

// DeleteParticipant removes the participant record.
func (s *Store) DeleteParticipant(ctx context.Context, meetingID, participantID string) (persistence.Participant, error) {
	e, err := s.lookup(ctx, meetingID)
	if err != nil {
		return persistence.Participant{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.participants[participantID]
	if !ok {
		return persistence.Participant{}, persistence.ErrNotFound
	}
	delete(e.participants, participantID)
	return rec.participant.Clone(), nil
}

// SetStatus toggles between active and frozen. Finalized meetings are terminal.
func (s *Store) SetStatus(ctx context.Context, meetingID string, status persistence.MeetingStatus) error {
	return s.withEntryLocked(ctx, meetingID, func(e *entry) error {
		if e.meta.Status == persistence.StatusFinalized {
			return persistence.ErrMeetingFinalized
		}
		e.meta.Status = status
		return nil
	})
}

// Finalize records the chosen slot and the finalized status together.
func (s *Store) Finalize(ctx context.Context, meetingID, slotID string) error {
	return s.withEntryLocked(ctx, meetingID, func(e *entry) error {
		if e.meta.Status == persistence.StatusFinalized {
			return persistence.ErrMeetingFinalized
		}
		v := slotID
		e.meta.FinalizedSlotID = &v
		e.meta.Status = persistence.StatusFinalized
		return nil
	})
}

// AppendGuestRequest adds a pending guest request.
func (s *Store) AppendGuestRequest(ctx context.Context, meetingID string, request persistence.GuestRequest) error {
	return s.withEntryLocked(ctx, meetingID, func(e *entry) error {
		for _, existing := range e.guestRequests {
			if existing.ID == request.ID {
				return persistence.ErrDuplicate
			}
		}
		e.guestRequests = append(e.guestRequests, request)
		return nil
	})
}

// ApproveGuestRequest promotes the request to an approved participant.
func (s *Store) ApproveGuestRequest(ctx context.Context, meetingID, requestID, participantID string) (persistence.Participant, error) {
	var out persistence.Participant
	err := s.withEntryLocked(ctx, meetingID, func(e *entry) error {
		if _, exists := e.participants[participantID]; exists {
			if !e.hasGuestRequest(requestID) {
				return persistence.ErrNotFound
			}
			return persistence.ErrDuplicate
		}
		request, ok := e.takeGuestRequest(requestID)
		if !ok {
			return persistence.ErrNotFound
		}
		out = persistence.Participant{
			ID:       participantID,
			Name:     request.Name,
			Status:   persistence.ParticipantApproved,
			Slots:    []string{},
			Position: e.nextPosition(),
		}
		e.participants[participantID] = &record{participant: out.Clone()}
		return nil
	})
	return out, err
}

// RemoveGuestRequest deletes a pending request and returns it.
func (s *Store) RemoveGuestRequest(ctx context.Context, meetingID, requestID string) (persistence.GuestRequest, error) {
	var out persistence.GuestRequest
	err := s.withEntryLocked(ctx, meetingID, func(e *entry) error {
		request, ok := e.takeGuestRequest(requestID)
		if !ok {
			return persistence.ErrNotFound
		}
		out = request
		return nil
	})
	return out, err
}

// DeleteExpiredMeetings drops meetings whose retention window has elapsed.
func (s *Store) DeleteExpiredMeetings(ctx context.Context, reference time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.meetings {
		if e.expired(reference) {
			delete(s.meetings, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.meetings[id]
	s.mu.RUnlock()
	if !ok {
		return nil, persistence.ErrNotFound
	}
	if e.expired(s.now()) {
		s.mu.Lock()
		if current, ok := s.meetings[id]; ok && current == e {
			delete(s.meetings, id)
		}
		s.mu.Unlock()
		return nil, persistence.ErrNotFound
	}
	return e, nil
}

// withParticipant holds the entry read lock and the participant's own lock.
func (s *Store) withParticipant(ctx context.Context, meetingID, participantID string, fn func(*entry, *record) error) error {
	e, err := s.lookup(ctx, meetingID)
	if err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.participants[participantID]
	if !ok {
		return persistence.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return fn(e, rec)
}

func (s *Store) withEntryLocked(ctx context.Context, meetingID string, fn func(*entry) error) error {
	e, err := s.lookup(ctx, meetingID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e)
}

// expired reads only ExpiresAt, which never changes after creation.
func (e *entry) expired(now time.Time) bool {
	return !e.meta.ExpiresAt.After(now)
}

func (e *entry) hasGuestRequest(id string) bool {
	for _, request := range e.guestRequests {
		if request.ID == id {
			return true
		}
	}
	return false
}

func (e *entry) takeGuestRequest(id string) (persistence.GuestRequest, bool) {
	for i, request := range e.guestRequests {
		if request.ID == id {
			e.guestRequests = append(e.guestRequests[:i:i], e.guestRequests[i+1:]...)
			return request, true
		}
	}
	return persistence.GuestRequest{}, false
}

func (e *entry) nextPosition() int {
	next := 0
	for _, rec := range e.participants {
		if rec.participant.Position >= next {
			next = rec.participant.Position + 1
		}
	}
	return next
}
