package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
)

// Postgres error codes the adapter translates.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PostgresStore is the pgx-backed Store.
//
// Exclusive locks are row locks (SELECT ... FOR UPDATE) on the users and
// conferences tables. Booking and conference updates are compare-and-set on
// the version column, so a write that raced a concurrent commit touches no
// rows and surfaces as ErrTxConflict.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTx implements Store.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return retryTx(ctx, func() (err error) {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		// Ensure the transaction is always resolved.
		defer func() {
			if err != nil {
				_ = tx.Rollback(ctx)
			}
		}()

		if err = fn(ctx, &pgTx{tx: tx}); err != nil {
			return translate(err)
		}
		if err = tx.Commit(ctx); err != nil {
			return translate(fmt.Errorf("commit transaction: %w", err))
		}
		return nil
	})
}

// translate maps retryable and uniqueness Postgres errors onto the store
// sentinels, leaving everything else untouched.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrDuplicate)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%s: %w", pgErr.Message, ErrTxConflict)
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

const (
	userColumns       = `user_id, interested_topics, created_at`
	conferenceColumns = `name, location, topics, start_timestamp, end_timestamp,
		capacity, available_slots, waitlist_seq, version, created_at`
	bookingColumns = `id, user_id, conference_name, status, booked_at,
		waitlisted_at, waitlist_seq, confirm_expires_at, version`
)

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.UserID, &u.InterestedTopics, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func scanConference(row pgx.Row) (*model.Conference, error) {
	var c model.Conference
	err := row.Scan(
		&c.Name, &c.Location, &c.Topics, &c.StartTime, &c.EndTime,
		&c.Capacity, &c.AvailableSlots, &c.WaitlistSeq, &c.Version, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan conference: %w", err)
	}
	return &c, nil
}

func scanBooking(row pgx.Row, extra ...any) (*model.Booking, error) {
	var (
		b      model.Booking
		id     uuid.UUID
		status string
	)
	dest := append([]any{
		&id, &b.UserID, &b.ConferenceName, &status, &b.BookedAt,
		&b.WaitlistedAt, &b.WaitlistSeq, &b.ConfirmExpiresAt, &b.Version,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.ID = id.String()
	b.Status = model.BookingStatus(status)
	return &b, nil
}

// textArray keeps a nil slice from being written as NULL.
func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (t *pgTx) LockUser(ctx context.Context, userID string) (*model.User, error) {
	return scanUser(t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1 FOR UPDATE`, userID))
}

func (t *pgTx) LockConference(ctx context.Context, name string) (*model.Conference, error) {
	return scanConference(t.tx.QueryRow(ctx,
		`SELECT `+conferenceColumns+` FROM conferences WHERE name = $1 FOR UPDATE`, name))
}

func (t *pgTx) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return scanUser(t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
}

func (t *pgTx) GetConference(ctx context.Context, name string) (*model.Conference, error) {
	return scanConference(t.tx.QueryRow(ctx,
		`SELECT `+conferenceColumns+` FROM conferences WHERE name = $1`, name))
}

func (t *pgTx) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return scanBooking(t.tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID))
}

func (t *pgTx) FindActiveBooking(ctx context.Context, userID, conference string) (*model.Booking, error) {
	return scanBooking(t.tx.QueryRow(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_id = $1 AND conference_name = $2 AND status <> 'cancelled'
		 LIMIT 1`,
		userID, conference))
}

func (t *pgTx) ListBookingsByConference(ctx context.Context, conference string, status model.BookingStatus) ([]*model.Booking, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE conference_name = $1 AND status = $2
		 ORDER BY waitlist_seq ASC, id ASC`,
		conference, string(status))
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *pgTx) ListUserBookings(ctx context.Context, userID string, statuses ...model.BookingStatus) ([]*model.UserBooking, error) {
	wanted := make([]string, len(statuses))
	for i, s := range statuses {
		wanted[i] = string(s)
	}
	rows, err := t.tx.Query(ctx,
		`SELECT b.id, b.user_id, b.conference_name, b.status, b.booked_at,
		        b.waitlisted_at, b.waitlist_seq, b.confirm_expires_at, b.version,
		        c.start_timestamp, c.end_timestamp
		 FROM bookings b
		 JOIN conferences c ON c.name = b.conference_name
		 WHERE b.user_id = $1 AND b.status = ANY($2)
		 ORDER BY b.id`,
		userID, wanted)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	defer rows.Close()

	var out []*model.UserBooking
	for rows.Next() {
		var w model.Window
		b, err := scanBooking(rows, &w.Start, &w.End)
		if err != nil {
			return nil, err
		}
		out = append(out, &model.UserBooking{Booking: *b, Window: w})
	}
	return out, rows.Err()
}

func (t *pgTx) CreateUser(ctx context.Context, u *model.User) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO users (user_id, interested_topics, created_at) VALUES ($1, $2, $3)`,
		u.UserID, textArray(u.InterestedTopics), u.CreatedAt)
	if err != nil {
		return translate(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

func (t *pgTx) CreateConference(ctx context.Context, c *model.Conference) error {
	c.Version = 1
	_, err := t.tx.Exec(ctx,
		`INSERT INTO conferences (`+conferenceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.Name, c.Location, textArray(c.Topics), c.StartTime, c.EndTime,
		c.Capacity, c.AvailableSlots, c.WaitlistSeq, c.Version, c.CreatedAt)
	if err != nil {
		return translate(fmt.Errorf("insert conference: %w", err))
	}
	return nil
}

func (t *pgTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	id := uuid.New()
	if b.ID != "" {
		parsed, err := uuid.Parse(b.ID)
		if err != nil {
			return fmt.Errorf("booking id %q: %w", b.ID, err)
		}
		id = parsed
	}
	b.Version = 1
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, b.UserID, b.ConferenceName, string(b.Status), b.BookedAt,
		b.WaitlistedAt, b.WaitlistSeq, b.ConfirmExpiresAt, b.Version)
	if err != nil {
		return translate(fmt.Errorf("insert booking: %w", err))
	}
	b.ID = id.String()
	return nil
}

func (t *pgTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	id, err := uuid.Parse(b.ID)
	if err != nil {
		return fmt.Errorf("booking %s: %w", b.ID, ErrNotFound)
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE bookings
		 SET status = $3, waitlisted_at = $4, waitlist_seq = $5,
		     confirm_expires_at = $6, version = version + 1
		 WHERE id = $1 AND version = $2`,
		id, b.Version, string(b.Status), b.WaitlistedAt, b.WaitlistSeq, b.ConfirmExpiresAt)
	if err != nil {
		return translate(fmt.Errorf("update booking: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, ErrTxConflict)
	}
	b.Version++
	return nil
}

func (t *pgTx) UpdateConference(ctx context.Context, c *model.Conference) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE conferences
		 SET available_slots = $3, waitlist_seq = $4, version = version + 1
		 WHERE name = $1 AND version = $2`,
		c.Name, c.Version, c.AvailableSlots, c.WaitlistSeq)
	if err != nil {
		return translate(fmt.Errorf("update conference: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conference %s: %w", c.Name, ErrTxConflict)
	}
	c.Version++
	return nil
}
