package persistence_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/persistence/memory"
	mongostore "github.com/example/meetgrid/internal/persistence/mongo"
	"github.com/example/meetgrid/internal/testfixtures"
)

type backend struct {
	name string
	open func(t *testing.T) (persistence.MeetingRepository, *testfixtures.Clock)
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) (persistence.MeetingRepository, *testfixtures.Clock) {
			clock := testfixtures.NewClock(time.Time{})
			return memory.New(clock.NowFunc()), clock
		}},
		{"sqlite", func(t *testing.T) (persistence.MeetingRepository, *testfixtures.Clock) {
			h := testfixtures.NewSQLiteHarness(t)
			return h.Meetings, h.Clock
		}},
		{"mongo", openMongo},
	}
}

// openMongo runs the contract against a throwaway database when
// MEETGRID_MONGO_URI points at a server.
func openMongo(t *testing.T) (persistence.MeetingRepository, *testfixtures.Clock) {
	uri := os.Getenv("MEETGRID_MONGO_URI")
	if uri == "" {
		t.Skip("MEETGRID_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	db := client.Database(fmt.Sprintf("meetgrid_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	clock := testfixtures.NewClock(time.Time{})
	store := mongostore.New(db, clock.NowFunc())
	require.NoError(t, store.EnsureIndexes(ctx))
	return store, clock
}

// forEachBackend runs fn against every store with a freshly seeded fixture meeting.
func forEachBackend(t *testing.T, fn func(t *testing.T, repo persistence.MeetingRepository, clock *testfixtures.Clock), opts ...testfixtures.MeetingOption) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			repo, clock := b.open(t)
			require.NoError(t, repo.CreateMeeting(context.Background(), testfixtures.NewMeetingFixture(opts...).Persistence()))
			fn(t, repo, clock)
		})
	}
}

var (
	meetingID = testfixtures.FixtureMeetingID
	alice     = testfixtures.FixtureParticipantID(0)
	bob       = testfixtures.FixtureParticipantID(1)
	missing   = testfixtures.FixtureParticipantID(99)

	aliceToken = testfixtures.FixtureDeviceToken(0)
	bobToken   = testfixtures.FixtureDeviceToken(1)
)

func TestCreateAndGetMeeting(t *testing.T) {
	description := "notes"
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, _ *testfixtures.Clock) {
		ctx := context.Background()

		got, err := repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)

		want := testfixtures.NewMeetingFixture(
			testfixtures.WithAllowGuest(true),
			testfixtures.WithClaimed(0),
			testfixtures.WithSlots(0, "d0_h9"),
			testfixtures.WithGuestRequest("req_0000000000000001", "Dana"),
		).Persistence()
		want.Meta.Description = &description
		assert.Equal(t, want, got)

		err = repo.CreateMeeting(ctx, testfixtures.NewMeetingFixture().Persistence())
		assert.ErrorIs(t, err, persistence.ErrDuplicate)

		_, err = repo.GetMeeting(ctx, "nothere001")
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		token, err := repo.GetAdminToken(ctx, meetingID)
		require.NoError(t, err)
		assert.Equal(t, testfixtures.FixtureAdminToken, token)
	},
		testfixtures.WithAllowGuest(true),
		testfixtures.WithClaimed(0),
		testfixtures.WithSlots(0, "d0_h9"),
		testfixtures.WithGuestRequest("req_0000000000000001", "Dana"),
		func(f *testfixtures.MeetingFixture) { f.Description = &description },
	)
}

func TestClaimParticipant(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, _ *testfixtures.Clock) {
		ctx := context.Background()

		p, err := repo.ClaimParticipant(ctx, meetingID, alice, testfixtures.FixtureDeviceToken(1))
		require.NoError(t, err)
		require.NotNil(t, p.DeviceToken)
		assert.Equal(t, testfixtures.FixtureDeviceToken(1), *p.DeviceToken)

		_, err = repo.ClaimParticipant(ctx, meetingID, alice, testfixtures.FixtureDeviceToken(2))
		assert.ErrorIs(t, err, persistence.ErrAlreadyClaimed)

		stored, err := repo.GetDeviceToken(ctx, meetingID, alice)
		require.NoError(t, err)
		assert.Equal(t, testfixtures.FixtureDeviceToken(1), *stored)

		_, err = repo.ClaimParticipant(ctx, meetingID, missing, testfixtures.FixtureDeviceToken(3))
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		unclaimed, err := repo.GetDeviceToken(ctx, meetingID, bob)
		require.NoError(t, err)
		assert.Nil(t, unclaimed)
	})
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, _ *testfixtures.Clock) {
		const n = 32
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []string
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				token := testfixtures.FixtureDeviceToken(i)
				_, err := repo.ClaimParticipant(context.Background(), meetingID, bob, token)
				if err == nil {
					mu.Lock()
					winners = append(winners, token)
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, persistence.ErrAlreadyClaimed)
			}(i)
		}
		wg.Wait()

		require.Len(t, winners, 1)
		stored, err := repo.GetDeviceToken(context.Background(), meetingID, bob)
		require.NoError(t, err)
		assert.Equal(t, winners[0], *stored)
	})
}

func TestSetDeviceToken(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, _ *testfixtures.Clock) {
		ctx := context.Background()

		replacement := testfixtures.FixtureDeviceToken(9)
		p, err := repo.SetDeviceToken(ctx, meetingID, alice, &replacement)
		require.NoError(t, err)
		assert.Equal(t, replacement, *p.DeviceToken)

		p, err = repo.SetDeviceToken(ctx, meetingID, alice, nil)
		require.NoError(t, err)
		assert.Nil(t, p.DeviceToken)

		_, err = repo.SetDeviceToken(ctx, meetingID, missing, nil)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	}, testfixtures.WithClaimed(0))
}

func TestReplaceSlotsRespectsStatus(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, _ *testfixtures.Clock) {
		ctx := context.Background()

		require.NoError(t, repo.ReplaceSlots(ctx, meetingID, alice, aliceToken, []string{"d0_h9", "d0_h10"}))
		require.NoError(t, repo.ReplaceSlots(ctx, meetingID, bob, bobToken, []string{"d0_h10"}))

		got, err := repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)
		assert.Equal(t, []string{"d0_h9", "d0_h10"}, got.Participants[alice].Slots)
		assert.Equal(t, []string{"d0_h10"}, got.Participants[bob].Slots)

		require.NoError(t, repo.SetStatus(ctx, meetingID, persistence.StatusFrozen))
		err = repo.ReplaceSlots(ctx, meetingID, alice, aliceToken, []string{})
		assert.ErrorIs(t, err, persistence.ErrMeetingLocked)

		got, err = repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)
		assert.Equal(t, []string{"d0_h9", "d0_h10"}, got.Participants[alice].Slots)

		err = repo.ReplaceSlots(ctx, meetingID, missing, aliceToken, []string{})
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		require.NoError(t, repo.SetStatus(ctx, meetingID, persistence.StatusActive))
		require.NoError(t, repo.ReplaceSlots(ctx, meetingID, alice, aliceToken, []string{}))
		got, err = repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)
		assert.Empty(t, got.Participants[alice].Slots)
	}, testfixtures.WithClaimed(0), testfixtures.WithClaimed(1))
}

func TestReplaceSlotsRequiresBoundToken(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, _ *testfixtures.Clock) {
		ctx := context.Background()

		err := repo.ReplaceSlots(ctx, meetingID, alice, bobToken, []string{"d0_h9"})
		assert.ErrorIs(t, err, persistence.ErrTokenMismatch)

		err = repo.ReplaceSlots(ctx, meetingID, bob, bobToken, []string{"d0_h9"})
		assert.ErrorIs(t, err, persistence.ErrTokenMismatch, "unclaimed participant")

		_, err = repo.SetDeviceToken(ctx, meetingID, alice, nil)
		require.NoError(t, err)
		err = repo.ReplaceSlots(ctx, meetingID, alice, aliceToken, []string{"d0_h9"})
		assert.ErrorIs(t, err, persistence.ErrTokenMismatch, "evicted token")

		require.NoError(t, repo.SetStatus(ctx, meetingID, persistence.StatusFrozen))
		err = repo.ReplaceSlots(ctx, meetingID, alice, aliceToken, []string{"d0_h9"})
		assert.ErrorIs(t, err, persistence.ErrTokenMismatch, "mismatch wins over lock")

		got, err := repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)
		assert.Equal(t, []string{"d0_h10"}, got.Participants[alice].Slots)
		assert.Empty(t, got.Participants[bob].Slots)
	}, testfixtures.WithClaimed(0), testfixtures.WithSlots(0, "d0_h10"))
}

func TestConcurrentSlotWritesToDifferentParticipants(t *testing.T) {
	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("P%d", i)
	}
	opts := []testfixtures.MeetingOption{testfixtures.WithParticipants(names...)}
	for i := range names {
		opts = append(opts, testfixtures.WithClaimed(i))
	}
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, _ *testfixtures.Clock) {
		var wg sync.WaitGroup
		for i := range names {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				slot := fmt.Sprintf("d0_h%d", 9+i%2)
				assert.NoError(t, repo.ReplaceSlots(context.Background(), meetingID, testfixtures.FixtureParticipantID(i), testfixtures.FixtureDeviceToken(i), []string{slot}))
			}(i)
		}
		wg.Wait()

		got, err := repo.GetMeeting(context.Background(), meetingID)
		require.NoError(t, err)
		for i := range names {
			want := fmt.Sprintf("d0_h%d", 9+i%2)
			assert.Equal(t, []string{want}, got.Participants[testfixtures.FixtureParticipantID(i)].Slots)
		}
	}, opts...)
}

func TestFinalize(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, _ *testfixtures.Clock) {
		ctx := context.Background()

		require.NoError(t, repo.Finalize(ctx, meetingID, "d0_h9"))
		got, err := repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)
		assert.Equal(t, persistence.StatusFinalized, got.Meta.Status)
		require.NotNil(t, got.Meta.FinalizedSlotID)
		assert.Equal(t, "d0_h9", *got.Meta.FinalizedSlotID)

		assert.ErrorIs(t, repo.Finalize(ctx, meetingID, "d0_h10"), persistence.ErrMeetingFinalized)
		assert.ErrorIs(t, repo.SetStatus(ctx, meetingID, persistence.StatusActive), persistence.ErrMeetingFinalized)
		assert.ErrorIs(t, repo.ReplaceSlots(ctx, meetingID, alice, aliceToken, []string{}), persistence.ErrMeetingLocked)
		assert.ErrorIs(t, repo.Finalize(ctx, "nothere001", "d0_h9"), persistence.ErrNotFound)
	}, testfixtures.WithClaimed(0))
}

func TestGuestRequests(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, clock *testfixtures.Clock) {
		ctx := context.Background()

		for i, name := range []string{"Dana", "Eli"} {
			require.NoError(t, repo.AppendGuestRequest(ctx, meetingID, persistence.GuestRequest{
				ID:                fmt.Sprintf("req_%016d", i+1),
				Name:              name,
				OriginFingerprint: "fp",
				RequestedAt:       clock.Now(),
			}))
		}
		err := repo.AppendGuestRequest(ctx, "nothere001", persistence.GuestRequest{ID: "req_0000000000000009"})
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		_, err = repo.ApproveGuestRequest(ctx, meetingID, "req_0000000000000001", alice)
		assert.ErrorIs(t, err, persistence.ErrDuplicate)
		pending, err := repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)
		require.Len(t, pending.GuestRequests, 2)
		assert.Equal(t, "Dana", pending.GuestRequests[0].Name, "failed approval keeps the queue order")
		assert.Equal(t, "Eli", pending.GuestRequests[1].Name)

		p, err := repo.ApproveGuestRequest(ctx, meetingID, "req_0000000000000001", missing)
		require.NoError(t, err)
		assert.Equal(t, "Dana", p.Name)
		assert.Equal(t, persistence.ParticipantApproved, p.Status)
		assert.Equal(t, 3, p.Position)
		assert.Nil(t, p.DeviceToken)
		assert.Empty(t, p.Slots)

		_, err = repo.ApproveGuestRequest(ctx, meetingID, "req_0000000000000001", testfixtures.FixtureParticipantID(98))
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		removed, err := repo.RemoveGuestRequest(ctx, meetingID, "req_0000000000000002")
		require.NoError(t, err)
		assert.Equal(t, "Eli", removed.Name)
		_, err = repo.RemoveGuestRequest(ctx, meetingID, "req_0000000000000002")
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		got, err := repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)
		assert.Empty(t, got.GuestRequests)
		assert.Len(t, got.Participants, 4)
		assert.Equal(t, "Dana", got.OrderedParticipants()[3].Name)
	})
}

func TestDeleteParticipant(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, _ *testfixtures.Clock) {
		ctx := context.Background()

		removed, err := repo.DeleteParticipant(ctx, meetingID, bob)
		require.NoError(t, err)
		assert.Equal(t, "B", removed.Name)

		_, err = repo.DeleteParticipant(ctx, meetingID, bob)
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		got, err := repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)
		assert.Len(t, got.Participants, 2)
	})
}

func TestExpiry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo persistence.MeetingRepository, clock *testfixtures.Clock) {
		ctx := context.Background()

		clock.Advance(7*24*time.Hour - time.Millisecond)
		_, err := repo.GetMeeting(ctx, meetingID)
		require.NoError(t, err)

		clock.Advance(time.Millisecond)
		_, err = repo.GetMeeting(ctx, meetingID)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		_, err = repo.ClaimParticipant(ctx, meetingID, alice, testfixtures.FixtureDeviceToken(1))
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		require.NoError(t, repo.CreateMeeting(ctx, testfixtures.NewMeetingFixture(testfixtures.WithCreatedAt(clock.Now())).Persistence()),
			"an expired id can be reused")

		removed, err := repo.DeleteExpiredMeetings(ctx, clock.Now().Add(8*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		_, err = repo.GetMeeting(ctx, meetingID)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
}
