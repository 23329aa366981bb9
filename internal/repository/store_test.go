package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
)

var (
	day     = time.Date(2026, time.November, 2, 0, 0, 0, 0, time.UTC)
	errStop = errors.New("stop")
)

// testStores runs each store contract check against a fresh store.
func testStores(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and read back", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("uniqueness", func(t *testing.T) { testUniqueness(t, newStore(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("version check", func(t *testing.T) { testVersionCheck(t, newStore(t)) })
	t.Run("lost race is replayed", func(t *testing.T) { testLostRaceReplayed(t, newStore(t)) })
	t.Run("waitlist order", func(t *testing.T) { testWaitlistOrder(t, newStore(t)) })
	t.Run("user bookings", func(t *testing.T) { testUserBookings(t, newStore(t)) })
}

func seed(t *testing.T, store Store, users []string, confs ...*model.Conference) {
	t.Helper()
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		for _, id := range users {
			if err := tx.CreateUser(ctx, &model.User{UserID: id, InterestedTopics: []string{"go"}, CreatedAt: day}); err != nil {
				return err
			}
		}
		for _, c := range confs {
			if err := tx.CreateConference(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func conference(name string, startHour, slots int) *model.Conference {
	start := day.Add(time.Duration(startHour) * time.Hour)
	return &model.Conference{
		Name:           name,
		Location:       "Hall A",
		Topics:         []string{"go"},
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		Capacity:       slots,
		AvailableSlots: slots,
		CreatedAt:      day,
	}
}

func createBooking(t *testing.T, store Store, b *model.Booking) *model.Booking {
	t.Helper()
	if b.BookedAt.IsZero() {
		b.BookedAt = day
	}
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateBooking(ctx, b)
	})
	require.NoError(t, err)
	return b
}

func getBooking(t *testing.T, store Store, id string) *model.Booking {
	t.Helper()
	var b *model.Booking
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx Tx) (err error) {
		b, err = tx.GetBooking(ctx, id)
		return err
	})
	require.NoError(t, err)
	return b
}

func testCreateAndGet(t *testing.T, store Store) {
	seed(t, store, []string{"alice"}, conference("GopherCon", 10, 3))
	b := createBooking(t, store, &model.Booking{UserID: "alice", ConferenceName: "GopherCon", Status: model.StatusConfirmed})

	_, err := uuid.Parse(b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, b.Version)

	err = store.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		user, err := tx.LockUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"go"}, user.InterestedTopics)

		conf, err := tx.LockConference(ctx, "GopherCon")
		require.NoError(t, err)
		assert.Equal(t, 3, conf.Capacity)
		assert.True(t, day.Add(10*time.Hour).Equal(conf.StartTime))
		assert.EqualValues(t, 1, conf.Version)

		got, err := tx.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, got.Status)
		assert.Nil(t, got.ConfirmExpiresAt)

		active, err := tx.FindActiveBooking(ctx, "alice", "GopherCon")
		require.NoError(t, err)
		assert.Equal(t, b.ID, active.ID)

		_, err = tx.GetUser(ctx, "bob")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = tx.GetConference(ctx, "RustConf")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = tx.GetBooking(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = tx.FindActiveBooking(ctx, "alice", "RustConf")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func testUniqueness(t *testing.T, store Store) {
	ctx := context.Background()
	seed(t, store, []string{"alice"}, conference("GopherCon", 10, 3))

	err := store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateUser(ctx, &model.User{UserID: "alice", CreatedAt: day})
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	err = store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateConference(ctx, conference("GopherCon", 12, 1))
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	first := createBooking(t, store, &model.Booking{UserID: "alice", ConferenceName: "GopherCon", Status: model.StatusWaitlist, WaitlistSeq: 1})
	err = store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateBooking(ctx, &model.Booking{UserID: "alice", ConferenceName: "GopherCon", Status: model.StatusConfirmed, BookedAt: day})
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	err = store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		first.Status = model.StatusCancelled
		return tx.UpdateBooking(ctx, first)
	})
	require.NoError(t, err)

	again := createBooking(t, store, &model.Booking{UserID: "alice", ConferenceName: "GopherCon", Status: model.StatusConfirmed})
	assert.NotEqual(t, first.ID, again.ID)
}

func testRollback(t *testing.T, store Store) {
	ctx := context.Background()
	seed(t, store, []string{"alice"}, conference("GopherCon", 10, 3))

	var id string
	err := store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		conf, err := tx.LockConference(ctx, "GopherCon")
		if err != nil {
			return err
		}
		conf.AvailableSlots--
		if err := tx.UpdateConference(ctx, conf); err != nil {
			return err
		}
		b := &model.Booking{UserID: "alice", ConferenceName: "GopherCon", Status: model.StatusConfirmed, BookedAt: day}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}
		id = b.ID
		return errStop
	})
	require.ErrorIs(t, err, errStop)

	err = store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		conf, err := tx.GetConference(ctx, "GopherCon")
		require.NoError(t, err)
		assert.Equal(t, 3, conf.AvailableSlots)
		assert.EqualValues(t, 1, conf.Version)

		_, err = tx.GetBooking(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func testVersionCheck(t *testing.T, store Store) {
	seed(t, store, []string{"alice"}, conference("GopherCon", 10, 3))
	b := createBooking(t, store, &model.Booking{UserID: "alice", ConferenceName: "GopherCon", Status: model.StatusWaitlist, WaitlistSeq: 1})

	attempts := 0
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		attempts++
		stale := *b
		stale.Version = 0
		stale.Status = model.StatusCancelled
		return tx.UpdateBooking(ctx, &stale)
	})
	assert.ErrorIs(t, err, ErrTxConflict)
	assert.Equal(t, maxTxAttempts, attempts)
	assert.Equal(t, model.StatusWaitlist, getBooking(t, store, b.ID).Status)
}

func testLostRaceReplayed(t *testing.T, store Store) {
	ctx := context.Background()
	seed(t, store, []string{"alice"}, conference("GopherCon", 10, 3))
	b := createBooking(t, store, &model.Booking{UserID: "alice", ConferenceName: "GopherCon", Status: model.StatusWaitlist, WaitlistSeq: 1})

	attempts := 0
	err := store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		cur, err := tx.GetBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if attempts == 1 {
			// A concurrent writer commits between our read and our write.
			err := store.RunInTx(ctx, func(ctx context.Context, other Tx) error {
				theirs, err := other.GetBooking(ctx, b.ID)
				if err != nil {
					return err
				}
				theirs.WaitlistSeq = 7
				return other.UpdateBooking(ctx, theirs)
			})
			if err != nil {
				return err
			}
		}
		cur.Status = model.StatusCancelled
		return tx.UpdateBooking(ctx, cur)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	final := getBooking(t, store, b.ID)
	assert.Equal(t, model.StatusCancelled, final.Status)
	assert.EqualValues(t, 7, final.WaitlistSeq)
	assert.EqualValues(t, 3, final.Version)
}

func testWaitlistOrder(t *testing.T, store Store) {
	seed(t, store, []string{"u1", "u2", "u3", "u4"}, conference("GopherCon", 10, 1))

	createBooking(t, store, &model.Booking{UserID: "u1", ConferenceName: "GopherCon", Status: model.StatusConfirmed})
	third := createBooking(t, store, &model.Booking{UserID: "u2", ConferenceName: "GopherCon", Status: model.StatusWaitlist, WaitlistSeq: 3})
	first := createBooking(t, store, &model.Booking{UserID: "u3", ConferenceName: "GopherCon", Status: model.StatusWaitlist, WaitlistSeq: 1})
	second := createBooking(t, store, &model.Booking{UserID: "u4", ConferenceName: "GopherCon", Status: model.StatusWaitlist, WaitlistSeq: 2})

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		list, err := tx.ListBookingsByConference(ctx, "GopherCon", model.StatusWaitlist)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

		confirmed, err := tx.ListBookingsByConference(ctx, "GopherCon", model.StatusConfirmed)
		require.NoError(t, err)
		assert.Len(t, confirmed, 1)
		return nil
	})
	require.NoError(t, err)
}

func testUserBookings(t *testing.T, store Store) {
	seed(t, store, []string{"alice"},
		conference("Morning", 9, 1),
		conference("Noon", 12, 1),
		conference("Evening", 18, 1),
	)
	createBooking(t, store, &model.Booking{UserID: "alice", ConferenceName: "Morning", Status: model.StatusConfirmed})
	noon := createBooking(t, store, &model.Booking{UserID: "alice", ConferenceName: "Noon", Status: model.StatusWaitlist, WaitlistSeq: 1})
	createBooking(t, store, &model.Booking{UserID: "alice", ConferenceName: "Evening", Status: model.StatusCancelled})

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		waiting, err := tx.ListUserBookings(ctx, "alice", model.StatusWaitlist)
		require.NoError(t, err)
		require.Len(t, waiting, 1)
		assert.Equal(t, noon.ID, waiting[0].ID)
		assert.True(t, day.Add(12*time.Hour).Equal(waiting[0].Window.Start))
		assert.True(t, day.Add(13*time.Hour).Equal(waiting[0].Window.End))

		active, err := tx.ListUserBookings(ctx, "alice", model.StatusConfirmed, model.StatusWaitlist)
		require.NoError(t, err)
		assert.Len(t, active, 2)

		none, err := tx.ListUserBookings(ctx, "bob", model.StatusConfirmed)
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	})
	require.NoError(t, err)
}
