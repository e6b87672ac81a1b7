package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/meetgrid/internal/persistence"
)

// liveMeeting restricts a statement to meetings whose retention has not elapsed.
const liveMeeting = `EXISTS (SELECT 1 FROM meetings m WHERE m.id = ? AND m.expires_at > ?)`

// MeetingRepository implements persistence.MeetingRepository using SQLite.
//
// Participant fields live in their own rows, so writes for different
// participants touch different rows. Same-field races are settled by
// conditional UPDATE statements (for example device_token IS NULL).
type MeetingRepository struct {
	pool   *ConnectionPool
	retry  *RetryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

var _ persistence.MeetingRepository = (*MeetingRepository)(nil)

// NewMeetingRepository creates a new SQLite meeting repository.
func NewMeetingRepository(pool *ConnectionPool, now func() time.Time) *MeetingRepository {
	if now == nil {
		now = time.Now
	}
	return &MeetingRepository{
		pool:   pool,
		retry:  NewRetryHelper(DefaultRetryConfig()),
		mapper: NewErrorMapper(),
		now:    now,
	}
}

func (r *MeetingRepository) nowMillis() int64 {
	return r.now().UnixMilli()
}

// tx runs fn in a transaction, retrying while the database is busy.
func (r *MeetingRepository) tx(ctx context.Context, fn TransactionFunc) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, fn)
	})
}

// CreateMeeting inserts the meeting with its participants and guest requests.
// An expired meeting with the same ID is replaced.
func (r *MeetingRepository) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	dates, err := json.Marshal(nonNil(meeting.Schedule.Dates))
	if err != nil {
		return fmt.Errorf("encode dates: %w", err)
	}

	return r.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM meetings WHERE id = ? AND expires_at <= ?`, meeting.ID, r.nowMillis()); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO meetings (id, title, description, admin_token, status, allow_guest, finalized_slot_id,
				schedule_type, dates, start_hour, end_hour, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			meeting.ID,
			meeting.Meta.Title,
			nullString(meeting.Meta.Description),
			meeting.Meta.AdminToken,
			string(statusOrActive(meeting.Meta.Status)),
			meeting.Meta.AllowGuest,
			nullString(meeting.Meta.FinalizedSlotID),
			string(meeting.Schedule.Type),
			string(dates),
			meeting.Schedule.StartHour,
			meeting.Schedule.EndHour,
			meeting.Meta.CreatedAt.UnixMilli(),
			meeting.Meta.ExpiresAt.UnixMilli(),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		for _, p := range meeting.OrderedParticipants() {
			if err := insertParticipant(ctx, tx, meeting.ID, p); err != nil {
				return r.mapper.MapError(err)
			}
		}
		for _, g := range meeting.GuestRequests {
			if err := insertGuestRequest(ctx, tx, meeting.ID, g); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// GetMeeting loads the full meeting.
func (r *MeetingRepository) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	var meeting persistence.Meeting
	err := r.tx(ctx, func(tx *sql.Tx) error {
		var err error
		meeting, err = r.loadMeeting(ctx, tx, id)
		return err
	})
	return meeting, err
}

func (r *MeetingRepository) loadMeeting(ctx context.Context, tx *sql.Tx, id string) (persistence.Meeting, error) {
	var (
		m           persistence.Meeting
		description sql.NullString
		finalized   sql.NullString
		status      string
		schedType   string
		dates       string
		createdAt   int64
		expiresAt   int64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, title, description, admin_token, status, allow_guest, finalized_slot_id,
			schedule_type, dates, start_hour, end_hour, created_at, expires_at
		FROM meetings WHERE id = ? AND expires_at > ?`, id, r.nowMillis()).Scan(
		&m.ID, &m.Meta.Title, &description, &m.Meta.AdminToken, &status, &m.Meta.AllowGuest, &finalized,
		&schedType, &dates, &m.Schedule.StartHour, &m.Schedule.EndHour, &createdAt, &expiresAt,
	)
	if err != nil {
		return persistence.Meeting{}, r.mapper.MapError(err)
	}

	m.Meta.Description = stringPtr(description)
	m.Meta.FinalizedSlotID = stringPtr(finalized)
	m.Meta.Status = persistence.MeetingStatus(status)
	m.Meta.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.Meta.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	m.Schedule.Type = persistence.ScheduleType(schedType)
	if err := json.Unmarshal([]byte(dates), &m.Schedule.Dates); err != nil {
		return persistence.Meeting{}, fmt.Errorf("decode dates for meeting %s: %w", id, err)
	}

	participants, err := queryParticipants(ctx, tx, `WHERE meeting_id = ? ORDER BY position, id`, id)
	if err != nil {
		return persistence.Meeting{}, err
	}
	m.Participants = make(map[string]persistence.Participant, len(participants))
	for _, p := range participants {
		m.Participants[p.ID] = p
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, origin_fingerprint, requested_at
		FROM guest_requests WHERE meeting_id = ? ORDER BY seq`, id)
	if err != nil {
		return persistence.Meeting{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			g           persistence.GuestRequest
			requestedAt int64
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.OriginFingerprint, &requestedAt); err != nil {
			return persistence.Meeting{}, err
		}
		g.RequestedAt = time.UnixMilli(requestedAt).UTC()
		m.GuestRequests = append(m.GuestRequests, g)
	}
	return m, rows.Err()
}

// GetAdminToken reads only the admin token column.
func (r *MeetingRepository) GetAdminToken(ctx context.Context, meetingID string) (string, error) {
	var token string
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT admin_token FROM meetings WHERE id = ? AND expires_at > ?`,
		meetingID, r.nowMillis()).Scan(&token)
	if err != nil {
		return "", r.mapper.MapError(err)
	}
	return token, nil
}

// GetDeviceToken reads only the participant's device token.
func (r *MeetingRepository) GetDeviceToken(ctx context.Context, meetingID, participantID string) (*string, error) {
	var token sql.NullString
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT device_token FROM participants
		WHERE meeting_id = ? AND id = ? AND `+liveMeeting,
		meetingID, participantID, meetingID, r.nowMillis()).Scan(&token)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	return stringPtr(token), nil
}

// ClaimParticipant sets the device token only while it is NULL.
func (r *MeetingRepository) ClaimParticipant(ctx context.Context, meetingID, participantID, token string) (persistence.Participant, error) {
	var out persistence.Participant
	err := r.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE participants SET device_token = ?
			WHERE meeting_id = ? AND id = ? AND device_token IS NULL AND `+liveMeeting,
			token, meetingID, participantID, meetingID, r.nowMillis())
		if err != nil {
			return err
		}
		if affected(res) == 0 {
			if _, err := r.findParticipant(ctx, tx, meetingID, participantID); err != nil {
				return err
			}
			return persistence.ErrAlreadyClaimed
		}
		out, err = r.findParticipant(ctx, tx, meetingID, participantID)
		return err
	})
	return out, err
}

// SetDeviceToken overwrites or clears the device token.
func (r *MeetingRepository) SetDeviceToken(ctx context.Context, meetingID, participantID string, token *string) (persistence.Participant, error) {
	var out persistence.Participant
	err := r.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE participants SET device_token = ?
			WHERE meeting_id = ? AND id = ? AND `+liveMeeting,
			nullString(token), meetingID, participantID, meetingID, r.nowMillis())
		if err != nil {
			return err
		}
		if affected(res) == 0 {
			return persistence.ErrNotFound
		}
		out, err = r.findParticipant(ctx, tx, meetingID, participantID)
		return err
	})
	return out, err
}

// ReplaceSlots writes the slot set while the meeting status is active and the
// participant's bound token is deviceToken.
func (r *MeetingRepository) ReplaceSlots(ctx context.Context, meetingID, participantID, deviceToken string, slots []string) error {
	encoded, err := json.Marshal(nonNil(slots))
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	return r.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE participants SET slots = ?
			WHERE meeting_id = ? AND id = ? AND device_token = ? AND EXISTS (
				SELECT 1 FROM meetings m
				WHERE m.id = participants.meeting_id AND m.status = 'active' AND m.expires_at > ?)`,
			string(encoded), meetingID, participantID, deviceToken, r.nowMillis())
		if err != nil {
			return err
		}
		if affected(res) == 0 {
			p, err := r.findParticipant(ctx, tx, meetingID, participantID)
			if err != nil {
				return err
			}
			if p.DeviceToken == nil || *p.DeviceToken != deviceToken {
				return persistence.ErrTokenMismatch
			}
			return persistence.ErrMeetingLocked
		}
		return nil
	})
}

// DeleteParticipant removes the participant row.
func (r *MeetingRepository) DeleteParticipant(ctx context.Context, meetingID, participantID string) (persistence.Participant, error) {
	var out persistence.Participant
	err := r.tx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = r.findParticipant(ctx, tx, meetingID, participantID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM participants WHERE meeting_id = ? AND id = ?`, meetingID, participantID)
		return err
	})
	return out, err
}

// SetStatus changes the status of a meeting that is not finalized.
func (r *MeetingRepository) SetStatus(ctx context.Context, meetingID string, status persistence.MeetingStatus) error {
	return r.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE meetings SET status = ?
			WHERE id = ? AND expires_at > ? AND status <> 'finalized'`,
			string(status), meetingID, r.nowMillis())
		if err != nil {
			return err
		}
		if affected(res) == 0 {
			return r.finalizedOrMissing(ctx, tx, meetingID)
		}
		return nil
	})
}

// Finalize sets the finalized status and slot in one statement.
func (r *MeetingRepository) Finalize(ctx context.Context, meetingID, slotID string) error {
	return r.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE meetings SET status = 'finalized', finalized_slot_id = ?
			WHERE id = ? AND expires_at > ? AND status <> 'finalized'`,
			slotID, meetingID, r.nowMillis())
		if err != nil {
			return err
		}
		if affected(res) == 0 {
			return r.finalizedOrMissing(ctx, tx, meetingID)
		}
		return nil
	})
}

// AppendGuestRequest inserts a pending guest request.
func (r *MeetingRepository) AppendGuestRequest(ctx context.Context, meetingID string, request persistence.GuestRequest) error {
	return r.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO guest_requests (meeting_id, id, name, origin_fingerprint, requested_at)
			SELECT ?, ?, ?, ?, ? WHERE `+liveMeeting,
			meetingID, request.ID, request.Name, request.OriginFingerprint, request.RequestedAt.UnixMilli(),
			meetingID, r.nowMillis())
		if err != nil {
			return r.mapper.MapError(err)
		}
		if affected(res) == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// ApproveGuestRequest deletes the request and inserts the approved participant
// in one transaction. Only one concurrent caller can delete the row.
func (r *MeetingRepository) ApproveGuestRequest(ctx context.Context, meetingID, requestID, participantID string) (persistence.Participant, error) {
	var out persistence.Participant
	err := r.tx(ctx, func(tx *sql.Tx) error {
		request, err := r.takeGuestRequest(ctx, tx, meetingID, requestID)
		if err != nil {
			return err
		}

		var position int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM participants WHERE meeting_id = ?`, meetingID).Scan(&position); err != nil {
			return err
		}

		out = persistence.Participant{
			ID:       participantID,
			Name:     request.Name,
			Status:   persistence.ParticipantApproved,
			Slots:    []string{},
			Position: position,
		}
		return r.mapper.MapError(insertParticipant(ctx, tx, meetingID, out))
	})
	return out, err
}

// RemoveGuestRequest deletes a pending request and returns it.
func (r *MeetingRepository) RemoveGuestRequest(ctx context.Context, meetingID, requestID string) (persistence.GuestRequest, error) {
	var out persistence.GuestRequest
	err := r.tx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = r.takeGuestRequest(ctx, tx, meetingID, requestID)
		return err
	})
	return out, err
}

// DeleteExpiredMeetings purges meetings whose retention window elapsed before reference.
func (r *MeetingRepository) DeleteExpiredMeetings(ctx context.Context, reference time.Time) (int, error) {
	var removed int
	err := r.tx(ctx, func(tx *sql.Tx) error {
		cutoff := reference.UnixMilli()
		for _, stmt := range []string{
			`DELETE FROM participants WHERE meeting_id IN (SELECT id FROM meetings WHERE expires_at <= ?)`,
			`DELETE FROM guest_requests WHERE meeting_id IN (SELECT id FROM meetings WHERE expires_at <= ?)`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, cutoff); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM meetings WHERE expires_at <= ?`, cutoff)
		if err != nil {
			return err
		}
		removed = int(affected(res))
		return nil
	})
	return removed, err
}

func (r *MeetingRepository) findParticipant(ctx context.Context, tx *sql.Tx, meetingID, participantID string) (persistence.Participant, error) {
	participants, err := queryParticipants(ctx, tx,
		`WHERE meeting_id = ? AND id = ? AND `+liveMeeting,
		meetingID, participantID, meetingID, r.nowMillis())
	if err != nil {
		return persistence.Participant{}, err
	}
	if len(participants) == 0 {
		return persistence.Participant{}, persistence.ErrNotFound
	}
	return participants[0], nil
}

func (r *MeetingRepository) takeGuestRequest(ctx context.Context, tx *sql.Tx, meetingID, requestID string) (persistence.GuestRequest, error) {
	var (
		g           persistence.GuestRequest
		requestedAt int64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, origin_fingerprint, requested_at FROM guest_requests
		WHERE meeting_id = ? AND id = ? AND `+liveMeeting,
		meetingID, requestID, meetingID, r.nowMillis()).Scan(&g.ID, &g.Name, &g.OriginFingerprint, &requestedAt)
	if err != nil {
		return persistence.GuestRequest{}, r.mapper.MapError(err)
	}
	g.RequestedAt = time.UnixMilli(requestedAt).UTC()

	res, err := tx.ExecContext(ctx, `DELETE FROM guest_requests WHERE meeting_id = ? AND id = ?`, meetingID, requestID)
	if err != nil {
		return persistence.GuestRequest{}, err
	}
	if affected(res) == 0 {
		return persistence.GuestRequest{}, persistence.ErrNotFound
	}
	return g, nil
}

func (r *MeetingRepository) finalizedOrMissing(ctx context.Context, tx *sql.Tx, meetingID string) error {
	var status string
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM meetings WHERE id = ? AND expires_at > ?`, meetingID, r.nowMillis()).Scan(&status)
	if err != nil {
		return r.mapper.MapError(err)
	}
	if persistence.MeetingStatus(status) == persistence.StatusFinalized {
		return persistence.ErrMeetingFinalized
	}
	return fmt.Errorf("sqlite: meeting %s not updated", meetingID)
}

func queryParticipants(ctx context.Context, tx *sql.Tx, where string, args ...any) ([]persistence.Participant, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, status, device_token, slots, position FROM participants `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.Participant
	for rows.Next() {
		var (
			p      persistence.Participant
			status string
			token  sql.NullString
			slots  string
		)
		if err := rows.Scan(&p.ID, &p.Name, &status, &token, &slots, &p.Position); err != nil {
			return nil, err
		}
		p.Status = persistence.ParticipantStatus(status)
		p.DeviceToken = stringPtr(token)
		if err := json.Unmarshal([]byte(slots), &p.Slots); err != nil {
			return nil, fmt.Errorf("decode slots for participant %s: %w", p.ID, err)
		}
		if p.Slots == nil {
			p.Slots = []string{}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func insertParticipant(ctx context.Context, tx *sql.Tx, meetingID string, p persistence.Participant) error {
	slots, err := json.Marshal(nonNil(p.Slots))
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	status := p.Status
	if status == "" {
		status = persistence.ParticipantApproved
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO participants (meeting_id, id, name, status, device_token, slots, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meetingID, p.ID, p.Name, string(status), nullString(p.DeviceToken), string(slots), p.Position)
	return err
}

func insertGuestRequest(ctx context.Context, tx *sql.Tx, meetingID string, g persistence.GuestRequest) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO guest_requests (meeting_id, id, name, origin_fingerprint, requested_at)
		VALUES (?, ?, ?, ?, ?)`,
		meetingID, g.ID, g.Name, g.OriginFingerprint, g.RequestedAt.UnixMilli())
	return err
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func statusOrActive(status persistence.MeetingStatus) persistence.MeetingStatus {
	if status == "" {
		return persistence.StatusActive
	}
	return status
}
