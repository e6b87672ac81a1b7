// Package mongo stores meetings as single MongoDB documents.
//
// Participants are a sub-document keyed by participant ID, so every mutator
// is a filtered update on one path. The filter carries the precondition (an
// unclaimed token, an active status, a pending request) and MongoDB applies
// the update atomically per document. A TTL index on meta.expiresAt removes
// expired meetings; reads also filter on it because TTL deletion lags.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/meetgrid/internal/persistence"
)

// CollectionName is the collection holding meeting documents.
const CollectionName = "meetings"

// Store implements persistence.MeetingRepository on a MongoDB collection.
type Store struct {
	meetings *mongo.Collection
	now      func() time.Time
}

var _ persistence.MeetingRepository = (*Store)(nil)

// New returns a store on db's meetings collection. Call EnsureIndexes once at
// startup.
func New(db *mongo.Database, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{meetings: db.Collection(CollectionName), now: now}
}

// EnsureIndexes creates the TTL index that expires meetings.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.meetings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "meta.expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("meta_expiresAt_ttl"),
	})
	if err != nil {
		return fmt.Errorf("mongo: create ttl index: %w", err)
	}
	return nil
}

func (s *Store) live(id string) bson.M {
	return bson.M{"_id": id, "meta.expiresAt": bson.M{"$gt": s.now().UTC()}}
}

func participantPath(participantID string) string {
	return "participants." + participantID
}

// CreateMeeting inserts the meeting, replacing an expired one with the same ID.
func (s *Store) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if _, err := s.meetings.DeleteOne(ctx, bson.M{
		"_id":            meeting.ID,
		"meta.expiresAt": bson.M{"$lte": s.now().UTC()},
	}); err != nil {
		return err
	}
	if _, err := s.meetings.InsertOne(ctx, toDoc(meeting)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("mongo: meeting %s: %w", meeting.ID, persistence.ErrDuplicate)
		}
		return err
	}
	return nil
}

// GetMeeting loads the full meeting document.
func (s *Store) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	var doc meetingDoc
	if err := s.meetings.FindOne(ctx, s.live(id)).Decode(&doc); err != nil {
		return persistence.Meeting{}, mapError(err)
	}
	return doc.meeting(), nil
}

// GetAdminToken reads only meta.adminToken.
func (s *Store) GetAdminToken(ctx context.Context, meetingID string) (string, error) {
	var doc meetingDoc
	opts := options.FindOne().SetProjection(bson.M{"meta.adminToken": 1})
	if err := s.meetings.FindOne(ctx, s.live(meetingID), opts).Decode(&doc); err != nil {
		return "", mapError(err)
	}
	return doc.Meta.AdminToken, nil
}

// GetDeviceToken reads only the participant's token.
func (s *Store) GetDeviceToken(ctx context.Context, meetingID, participantID string) (*string, error) {
	p, err := s.findParticipant(ctx, meetingID, participantID)
	if err != nil {
		return nil, err
	}
	return p.DeviceToken, nil
}

// ClaimParticipant sets the token only while it is null.
func (s *Store) ClaimParticipant(ctx context.Context, meetingID, participantID, token string) (persistence.Participant, error) {
	path := participantPath(participantID)
	filter := s.live(meetingID)
	filter[path] = bson.M{"$exists": true}
	filter[path+".deviceToken"] = nil

	p, err := s.updateParticipant(ctx, filter, bson.M{"$set": bson.M{path + ".deviceToken": token}}, participantID, options.After)
	if errors.Is(err, persistence.ErrNotFound) {
		if _, probeErr := s.findParticipant(ctx, meetingID, participantID); probeErr != nil {
			return persistence.Participant{}, probeErr
		}
		return persistence.Participant{}, persistence.ErrAlreadyClaimed
	}
	return p, err
}

// SetDeviceToken overwrites or clears the participant's token.
func (s *Store) SetDeviceToken(ctx context.Context, meetingID, participantID string, token *string) (persistence.Participant, error) {
	path := participantPath(participantID)
	filter := s.live(meetingID)
	filter[path] = bson.M{"$exists": true}

	var value any
	if token != nil {
		value = *token
	}
	return s.updateParticipant(ctx, filter, bson.M{"$set": bson.M{path + ".deviceToken": value}}, participantID, options.After)
}

// ReplaceSlots writes the slot set while the meeting is active and the
// participant's bound token is deviceToken.
func (s *Store) ReplaceSlots(ctx context.Context, meetingID, participantID, deviceToken string, slots []string) error {
	path := participantPath(participantID)
	filter := s.live(meetingID)
	filter[path+".deviceToken"] = deviceToken
	filter["meta.status"] = string(persistence.StatusActive)

	res, err := s.meetings.UpdateOne(ctx, filter, bson.M{"$set": bson.M{path + ".slots": nonNil(slots)}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		p, err := s.findParticipant(ctx, meetingID, participantID)
		if err != nil {
			return err
		}
		if p.DeviceToken == nil || *p.DeviceToken != deviceToken {
			return persistence.ErrTokenMismatch
		}
		return persistence.ErrMeetingLocked
	}
	return nil
}

// DeleteParticipant unsets the participant and returns its last state.
func (s *Store) DeleteParticipant(ctx context.Context, meetingID, participantID string) (persistence.Participant, error) {
	path := participantPath(participantID)
	filter := s.live(meetingID)
	filter[path] = bson.M{"$exists": true}
	return s.updateParticipant(ctx, filter, bson.M{"$unset": bson.M{path: ""}}, participantID, options.Before)
}

// SetStatus changes the status of a meeting that is not finalized.
func (s *Store) SetStatus(ctx context.Context, meetingID string, status persistence.MeetingStatus) error {
	return s.updateUnfinalized(ctx, meetingID, bson.M{"meta.status": string(status)})
}

// Finalize sets the finalized status and slot in one update.
func (s *Store) Finalize(ctx context.Context, meetingID, slotID string) error {
	return s.updateUnfinalized(ctx, meetingID, bson.M{
		"meta.status":          string(persistence.StatusFinalized),
		"meta.finalizedSlotId": slotID,
	})
}

func (s *Store) updateUnfinalized(ctx context.Context, meetingID string, set bson.M) error {
	filter := s.live(meetingID)
	filter["meta.status"] = bson.M{"$ne": string(persistence.StatusFinalized)}

	res, err := s.meetings.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetAdminToken(ctx, meetingID); err != nil {
			return err
		}
		return persistence.ErrMeetingFinalized
	}
	return nil
}

// AppendGuestRequest pushes a request unless one with the same ID exists.
func (s *Store) AppendGuestRequest(ctx context.Context, meetingID string, request persistence.GuestRequest) error {
	filter := s.live(meetingID)
	filter["guestRequests.id"] = bson.M{"$ne": request.ID}

	res, err := s.meetings.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"guestRequests": guestRequestDoc{
		ID:                request.ID,
		Name:              request.Name,
		OriginFingerprint: request.OriginFingerprint,
		RequestedAt:       request.RequestedAt.UTC(),
	}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetAdminToken(ctx, meetingID); err != nil {
			return err
		}
		return persistence.ErrDuplicate
	}
	return nil
}

// ApproveGuestRequest pulls the request and sets the new participant in one
// update filtered on the request still being present, so only one concurrent
// approval can match.
func (s *Store) ApproveGuestRequest(ctx context.Context, meetingID, requestID, participantID string) (persistence.Participant, error) {
	current, err := s.GetMeeting(ctx, meetingID)
	if err != nil {
		return persistence.Participant{}, err
	}
	var request *persistence.GuestRequest
	for i := range current.GuestRequests {
		if current.GuestRequests[i].ID == requestID {
			request = &current.GuestRequests[i]
			break
		}
	}
	if request == nil {
		return persistence.Participant{}, persistence.ErrNotFound
	}
	if _, exists := current.Participants[participantID]; exists {
		return persistence.Participant{}, persistence.ErrDuplicate
	}

	approved := persistence.Participant{
		ID:       participantID,
		Name:     request.Name,
		Status:   persistence.ParticipantApproved,
		Slots:    []string{},
		Position: current.NextPosition(),
	}
	filter := s.live(meetingID)
	filter["guestRequests.id"] = requestID
	res, err := s.meetings.UpdateOne(ctx, filter, bson.M{
		"$pull": bson.M{"guestRequests": bson.M{"id": requestID}},
		"$set":  bson.M{participantPath(participantID): toParticipantDoc(approved)},
	})
	if err != nil {
		return persistence.Participant{}, err
	}
	if res.MatchedCount == 0 {
		return persistence.Participant{}, persistence.ErrNotFound
	}
	return approved, nil
}

// RemoveGuestRequest pulls a request and returns it.
func (s *Store) RemoveGuestRequest(ctx context.Context, meetingID, requestID string) (persistence.GuestRequest, error) {
	filter := s.live(meetingID)
	filter["guestRequests.id"] = requestID
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"guestRequests": bson.M{"$elemMatch": bson.M{"id": requestID}}})

	var doc meetingDoc
	err := s.meetings.FindOneAndUpdate(ctx, filter, bson.M{"$pull": bson.M{"guestRequests": bson.M{"id": requestID}}}, opts).Decode(&doc)
	if err != nil {
		return persistence.GuestRequest{}, mapError(err)
	}
	if len(doc.GuestRequests) == 0 {
		return persistence.GuestRequest{}, persistence.ErrNotFound
	}
	return doc.GuestRequests[0].guestRequest(), nil
}

// DeleteExpiredMeetings removes documents the TTL monitor has not reached yet.
func (s *Store) DeleteExpiredMeetings(ctx context.Context, reference time.Time) (int, error) {
	res, err := s.meetings.DeleteMany(ctx, bson.M{"meta.expiresAt": bson.M{"$lte": reference.UTC()}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *Store) findParticipant(ctx context.Context, meetingID, participantID string) (persistence.Participant, error) {
	path := participantPath(participantID)
	filter := s.live(meetingID)
	filter[path] = bson.M{"$exists": true}

	var doc meetingDoc
	opts := options.FindOne().SetProjection(bson.M{path: 1})
	if err := s.meetings.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		return persistence.Participant{}, mapError(err)
	}
	p, ok := doc.Participants[participantID]
	if !ok {
		return persistence.Participant{}, persistence.ErrNotFound
	}
	return p.participant(participantID), nil
}

func (s *Store) updateParticipant(ctx context.Context, filter, update bson.M, participantID string, returnDoc options.ReturnDocument) (persistence.Participant, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(returnDoc).
		SetProjection(bson.M{participantPath(participantID): 1})

	var doc meetingDoc
	if err := s.meetings.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return persistence.Participant{}, mapError(err)
	}
	p, ok := doc.Participants[participantID]
	if !ok {
		return persistence.Participant{}, persistence.ErrNotFound
	}
	return p.participant(participantID), nil
}

func mapError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.ErrNotFound
	}
	return err
}
