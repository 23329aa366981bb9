package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
	"github.com/Shivanand-hulikatti/conference-booking/internal/repository"
)

var day = time.Date(2026, time.November, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.PromotionEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event model.PromotionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []model.PromotionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.PromotionEvent(nil), n.events...)
}

type fixture struct {
	store    *repository.MemoryStore
	clock    *fakeClock
	events   *recordingNotifier
	registry *RegistryService
	bookings *BookingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	f := &fixture{
		store:  repository.NewMemoryStore(),
		clock:  &fakeClock{now: at(7, 0)},
		events: &recordingNotifier{},
	}
	opts := []Option{WithClock(f.clock.Now), WithNotifier(f.events)}
	f.registry = NewRegistryService(f.store, &log, opts...)
	f.bookings = NewBookingService(f.store, &log, opts...)
	return f
}

func (f *fixture) addUser(t *testing.T, id string) {
	t.Helper()
	_, err := f.registry.RegisterUser(context.Background(), model.CreateUserRequest{
		UserID:           id,
		InterestedTopics: "go, databases",
	})
	require.NoError(t, err)
}

func (f *fixture) addConference(t *testing.T, name string, start, end time.Time, slots int) {
	t.Helper()
	_, err := f.registry.RegisterConference(context.Background(), model.CreateConferenceRequest{
		Name:           name,
		Location:       "Hall A",
		Topics:         "go",
		StartTimestamp: start,
		EndTimestamp:   end,
		AvailableSlots: slots,
	})
	require.NoError(t, err)
}

func (f *fixture) book(t *testing.T, user, conference string) *model.BookingResult {
	t.Helper()
	res, err := f.bookings.CreateBooking(context.Background(), user, conference)
	require.NoError(t, err)
	return res
}

func (f *fixture) booking(t *testing.T, id string) *model.Booking {
	t.Helper()
	var b *model.Booking
	err := f.store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) (err error) {
		b, err = tx.GetBooking(ctx, id)
		return err
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) conference(t *testing.T, name string) *model.Conference {
	t.Helper()
	conf, err := f.registry.GetConference(context.Background(), name)
	require.NoError(t, err)
	return conf
}

func (f *fixture) countByStatus(t *testing.T, conference string, status model.BookingStatus) int {
	t.Helper()
	var n int
	err := f.store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		list, err := tx.ListBookingsByConference(ctx, conference, status)
		n = len(list)
		return err
	})
	require.NoError(t, err)
	return n
}
