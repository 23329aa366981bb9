// Package repository implements the entity store for users, conferences and
// bookings. Two adapters share one contract: Postgres via pgx for production
// and an in-memory store for development and tests.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a create would violate a uniqueness rule:
// user id, conference name, or one active booking per user and conference.
var ErrDuplicate = errors.New("already exists")

// ErrTxConflict is returned when an update lost an optimistic version check
// to a concurrent transaction. RunInTx retries the unit of work on it.
var ErrTxConflict = errors.New("transaction conflict")

// maxTxAttempts bounds how often RunInTx replays a unit of work that lost a
// version check.
const maxTxAttempts = 8

// Store runs units of work against the entity store.
type Store interface {
	// RunInTx executes fn inside one transaction. Everything fn writes
	// commits together when fn returns nil and is discarded otherwise.
	// Locks taken through the Tx are held until the transaction ends.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside one transaction.
//
// Locks must be taken user first, then conference, and at most one of each
// per transaction. Records returned by Tx are copies owned by the caller.
type Tx interface {
	// LockUser reads the user and holds it exclusively until the
	// transaction ends.
	LockUser(ctx context.Context, userID string) (*model.User, error)
	// LockConference reads the conference and holds it exclusively until
	// the transaction ends.
	LockConference(ctx context.Context, name string) (*model.Conference, error)

	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetConference(ctx context.Context, name string) (*model.Conference, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)

	// FindActiveBooking returns the user's non-cancelled booking for the
	// conference, or ErrNotFound.
	FindActiveBooking(ctx context.Context, userID, conference string) (*model.Booking, error)
	// ListBookingsByConference returns the conference's bookings with the
	// given status, ordered by waitlist sequence and then id.
	ListBookingsByConference(ctx context.Context, conference string, status model.BookingStatus) ([]*model.Booking, error)
	// ListUserBookings returns the user's bookings whose status is one of
	// statuses, each joined with its conference window.
	ListUserBookings(ctx context.Context, userID string, statuses ...model.BookingStatus) ([]*model.UserBooking, error)

	CreateUser(ctx context.Context, u *model.User) error
	CreateConference(ctx context.Context, c *model.Conference) error
	// CreateBooking inserts b, generating its id when empty.
	CreateBooking(ctx context.Context, b *model.Booking) error

	// UpdateBooking writes b if its Version still matches the stored one
	// and increments b.Version. A mismatch yields ErrTxConflict.
	UpdateBooking(ctx context.Context, b *model.Booking) error
	// UpdateConference has the same compare-and-set contract as UpdateBooking.
	UpdateConference(ctx context.Context, c *model.Conference) error
}

// retryTx replays run while it fails with ErrTxConflict.
func retryTx(ctx context.Context, run func() error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = run()
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func hasStatus(s model.BookingStatus, statuses []model.BookingStatus) bool {
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
