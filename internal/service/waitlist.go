package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
	"github.com/Shivanand-hulikatti/conference-booking/internal/repository"
)

// DefaultConfirmWindow is how long a waitlisted booking may take to confirm
// once it is offered a seat.
const DefaultConfirmWindow = time.Hour

// SweepReport lists the bookings one maintenance sweep touched.
type SweepReport struct {
	Requeued []string
	Granted  []string
}

// Changed reports whether the sweep wrote anything.
func (r SweepReport) Changed() bool {
	return len(r.Requeued) > 0 || len(r.Granted) > 0
}

// WaitlistMaintainer brings one conference's waitlist up to date: bookings
// whose confirmation window lapsed go to the back of the queue, then the
// head of the queue is offered as many windows as there are free seats.
type WaitlistMaintainer struct {
	store  repository.Store
	log    *zerolog.Logger
	now    func() time.Time
	window time.Duration
}

// NewWaitlistMaintainer constructs a WaitlistMaintainer.
func NewWaitlistMaintainer(store repository.Store, log *zerolog.Logger, opts ...Option) *WaitlistMaintainer {
	o := newOptions(opts)
	return &WaitlistMaintainer{store: store, log: log, now: o.now, window: o.confirmWindow}
}

// Maintain sweeps the named conference in its own transaction.
func (m *WaitlistMaintainer) Maintain(ctx context.Context, conference string) (SweepReport, error) {
	var report SweepReport
	err := m.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		conf, err := tx.LockConference(ctx, conference)
		if err != nil {
			return lookup(err, "conference "+conference)
		}
		report, err = m.sweep(ctx, tx, conf)
		return err
	})
	if err != nil {
		return SweepReport{}, err
	}
	return report, nil
}

// sweep runs both phases against conf, which the caller must hold locked
// inside tx. conf is updated in place.
func (m *WaitlistMaintainer) sweep(ctx context.Context, tx repository.Tx, conf *model.Conference) (SweepReport, error) {
	var report SweepReport
	now := m.now()

	queue, err := tx.ListBookingsByConference(ctx, conf.Name, model.StatusWaitlist)
	if err != nil {
		return report, fmt.Errorf("list waitlist: %w", err)
	}

	// Requeue: a lapsed window costs the booking its place in line.
	for _, b := range queue {
		if b.ConfirmExpiresAt == nil || now.Before(*b.ConfirmExpiresAt) {
			continue
		}
		requeuedAt := now
		b.WaitlistedAt = &requeuedAt
		b.WaitlistSeq = conf.NextWaitlistSeq()
		b.ConfirmExpiresAt = nil
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return report, fmt.Errorf("requeue booking %s: %w", b.ID, err)
		}
		report.Requeued = append(report.Requeued, b.ID)
	}
	if len(report.Requeued) > 0 {
		if err := tx.UpdateConference(ctx, conf); err != nil {
			return report, fmt.Errorf("advance waitlist sequence: %w", err)
		}
		sort.SliceStable(queue, func(i, j int) bool {
			if queue[i].WaitlistSeq != queue[j].WaitlistSeq {
				return queue[i].WaitlistSeq < queue[j].WaitlistSeq
			}
			return queue[i].ID < queue[j].ID
		})
	}

	// Grant: the first AvailableSlots bookings in line hold a window.
	// Live windows are left as they are.
	for i := 0; i < len(queue) && i < conf.AvailableSlots; i++ {
		b := queue[i]
		if b.ConfirmExpiresAt != nil {
			continue
		}
		expires := now.Add(m.window)
		b.ConfirmExpiresAt = &expires
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return report, fmt.Errorf("grant window to booking %s: %w", b.ID, err)
		}
		report.Granted = append(report.Granted, b.ID)
	}

	if report.Changed() {
		m.log.Debug().
			Str("conference", conf.Name).
			Strs("requeued", report.Requeued).
			Strs("granted", report.Granted).
			Int("available_slots", conf.AvailableSlots).
			Msg("waitlist maintained")
	}
	return report, nil
}
