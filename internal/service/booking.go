// Package service implements the seat allocation engine, the waitlist
// maintainer and the registry of users and conferences on top of the
// repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
	"github.com/Shivanand-hulikatti/conference-booking/internal/repository"
)

// BookingService drives the booking state machine:
//
//	confirmed ──cancel──────────────▶ cancelled
//	waitlist  ──cancel──────────────▶ cancelled
//	waitlist  ──confirm (in window)─▶ confirmed
//	waitlist  ──overlap-release─────▶ cancelled
//	waitlist  ──window expiry───────▶ waitlist (back of the queue)
//	(none)    ──create──────────────▶ confirmed | waitlist
//
// Every operation runs in one store transaction holding the affected user
// (when a seat may be taken) and conference exclusively.
//
// Promotion is lazy: cancelling a confirmed booking frees a seat but offers it
// to nobody. The waitlist is brought up to date when someone reads a booking
// status or attempts a confirmation. With a Notifier configured, cancellations
// also publish a PromotionEvent so a worker can run the maintainer right away.
type BookingService struct {
	store      repository.Store
	maintainer *WaitlistMaintainer
	notifier   Notifier
	log        *zerolog.Logger
	now        func() time.Time
}

// NewBookingService constructs a BookingService.
func NewBookingService(store repository.Store, log *zerolog.Logger, opts ...Option) *BookingService {
	o := newOptions(opts)
	return &BookingService{
		store:      store,
		maintainer: NewWaitlistMaintainer(store, log, opts...),
		notifier:   o.notifier,
		log:        log,
		now:        o.now,
	}
}

// Maintainer returns the waitlist maintainer the service sweeps with.
func (s *BookingService) Maintainer() *WaitlistMaintainer {
	return s.maintainer
}

// CreateBooking requests a seat for userID at conference.
//
// The booking is confirmed when a seat is free and nobody is waitlisted;
// otherwise it joins the back of the waitlist. A non-empty waitlist always
// goes first, even when seats are free.
func (s *BookingService) CreateBooking(ctx context.Context, userID, conference string) (*model.BookingResult, error) {
	var (
		result   model.BookingResult
		released []*model.UserBooking
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		released = nil

		if _, err := tx.GetConference(ctx, conference); err != nil {
			return lookup(err, "conference "+conference)
		}
		if _, err := tx.LockUser(ctx, userID); err != nil {
			return lookup(err, "user "+userID)
		}
		conf, err := tx.LockConference(ctx, conference)
		if err != nil {
			return lookup(err, "conference "+conference)
		}

		active, err := tx.FindActiveBooking(ctx, userID, conf.Name)
		switch {
		case err == nil:
			return conflict("user %s already has an active booking for %s (booking %s)", userID, conf.Name, active.ID)
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("find active booking: %w", err)
		}

		overlapping, err := findOverlapping(ctx, tx, userID, conf.Window(), "", model.StatusConfirmed)
		if err != nil {
			return fmt.Errorf("check overlapping bookings: %w", err)
		}
		if len(overlapping) > 0 {
			return conflict("user %s has a confirmed booking for %s overlapping %s",
				userID, overlapping[0].ConferenceName, conf.Name)
		}

		waitlist, err := tx.ListBookingsByConference(ctx, conf.Name, model.StatusWaitlist)
		if err != nil {
			return fmt.Errorf("list waitlist: %w", err)
		}

		now := s.now()
		booking := &model.Booking{
			UserID:         userID,
			ConferenceName: conf.Name,
			BookedAt:       now,
		}
		if conf.AvailableSlots > 0 && len(waitlist) == 0 {
			booking.Status = model.StatusConfirmed
			conf.AvailableSlots--
		} else {
			booking.Status = model.StatusWaitlist
			booking.WaitlistedAt = &now
			booking.WaitlistSeq = conf.NextWaitlistSeq()
		}

		if err := tx.UpdateConference(ctx, conf); err != nil {
			return fmt.Errorf("update conference: %w", err)
		}
		if err := tx.CreateBooking(ctx, booking); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflict("user %s already has an active booking for %s", userID, conf.Name)
			}
			return fmt.Errorf("create booking: %w", err)
		}

		if booking.Status == model.StatusConfirmed {
			released, err = s.removeOverlappingWaitlists(ctx, tx, userID, conf)
			if err != nil {
				return err
			}
		}

		result = model.BookingResult{BookingID: booking.ID, Status: booking.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("booking_id", result.BookingID).
		Str("user_id", userID).
		Str("conference", conference).
		Str("status", string(result.Status)).
		Msg("booking created")
	s.notifyReleased(ctx, released)
	return &result, nil
}

// CancelBooking cancels a confirmed or waitlisted booking. Cancelling a
// confirmed booking returns its seat to the conference. Cancelled is terminal:
// a second cancel fails with ErrConflict and changes nothing.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID string) (*model.BookingRef, error) {
	var (
		previous   model.BookingStatus
		heldWindow bool
		conference string
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return lookup(err, "booking "+bookingID)
		}
		conf, err := tx.LockConference(ctx, booking.ConferenceName)
		if err != nil {
			return lookup(err, "conference "+booking.ConferenceName)
		}
		// Re-read under the conference lock.
		if booking, err = tx.GetBooking(ctx, bookingID); err != nil {
			return lookup(err, "booking "+bookingID)
		}
		if booking.Status == model.StatusCancelled {
			return conflict("booking %s is already cancelled", bookingID)
		}

		previous = booking.Status
		heldWindow = booking.ConfirmExpiresAt != nil
		conference = conf.Name

		if booking.Status == model.StatusConfirmed {
			if conf.AvailableSlots >= conf.Capacity {
				return fmt.Errorf("conference %s already has all %d seats free", conf.Name, conf.Capacity)
			}
			conf.AvailableSlots++
			if err := tx.UpdateConference(ctx, conf); err != nil {
				return fmt.Errorf("release seat: %w", err)
			}
		}

		booking.Status = model.StatusCancelled
		booking.ConfirmExpiresAt = nil
		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("booking_id", bookingID).
		Str("conference", conference).
		Str("previous_status", string(previous)).
		Msg("booking cancelled")

	switch {
	case previous == model.StatusConfirmed:
		s.notify(ctx, conference, bookingID, model.ReasonSlotFreed)
	case heldWindow:
		s.notify(ctx, conference, bookingID, model.ReasonWindowReleased)
	}
	return &model.BookingRef{BookingID: bookingID}, nil
}

// GetBookingStatus maintains the booking's conference waitlist, then reports
// the booking's status and whether it currently holds a confirmation window.
func (s *BookingService) GetBookingStatus(ctx context.Context, bookingID string) (*model.BookingStatusResult, error) {
	var result model.BookingStatusResult
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return lookup(err, "booking "+bookingID)
		}
		conf, err := tx.LockConference(ctx, booking.ConferenceName)
		if err != nil {
			return lookup(err, "conference "+booking.ConferenceName)
		}
		if _, err := s.maintainer.sweep(ctx, tx, conf); err != nil {
			return err
		}
		if booking, err = tx.GetBooking(ctx, bookingID); err != nil {
			return lookup(err, "booking "+bookingID)
		}

		result = model.BookingStatusResult{
			BookingID:     booking.ID,
			Status:        booking.Status,
			IsConfirmable: booking.Confirmable(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmWaitlistBooking turns a waitlisted booking that holds a live
// confirmation window into a confirmed one, taking one seat.
func (s *BookingService) ConfirmWaitlistBooking(ctx context.Context, bookingID string) (*model.BookingRef, error) {
	var (
		conference string
		userID     string
		released   []*model.UserBooking
		refused    error
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		released, refused = nil, nil

		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return lookup(err, "booking "+bookingID)
		}
		if booking.Status != model.StatusWaitlist {
			return conflict("booking %s is %s, not waitlisted", bookingID, booking.Status)
		}

		if _, err := tx.LockUser(ctx, booking.UserID); err != nil {
			return lookup(err, "user "+booking.UserID)
		}
		conf, err := tx.LockConference(ctx, booking.ConferenceName)
		if err != nil {
			return lookup(err, "conference "+booking.ConferenceName)
		}
		if _, err := s.maintainer.sweep(ctx, tx, conf); err != nil {
			return err
		}

		// From here on a refusal still commits the sweep above.
		if booking, err = tx.GetBooking(ctx, bookingID); err != nil {
			return lookup(err, "booking "+bookingID)
		}
		if booking.Status != model.StatusWaitlist {
			refused = conflict("booking %s is %s, not waitlisted", bookingID, booking.Status)
			return nil
		}
		if booking.ConfirmExpiresAt == nil {
			refused = fmt.Errorf("%w: booking %s holds no confirmation window", ErrExpired, bookingID)
			return nil
		}
		if conf.AvailableSlots <= 0 {
			return fmt.Errorf("conference %s has a granted window but no free seat", conf.Name)
		}

		overlapping, err := findOverlapping(ctx, tx, booking.UserID, conf.Window(), conf.Name, model.StatusConfirmed)
		if err != nil {
			return fmt.Errorf("check overlapping bookings: %w", err)
		}
		if len(overlapping) > 0 {
			refused = conflict("user %s has a confirmed booking for %s overlapping %s",
				booking.UserID, overlapping[0].ConferenceName, conf.Name)
			return nil
		}

		booking.Status = model.StatusConfirmed
		booking.WaitlistedAt = nil
		booking.ConfirmExpiresAt = nil
		conf.AvailableSlots--

		if err := tx.UpdateConference(ctx, conf); err != nil {
			return fmt.Errorf("take seat: %w", err)
		}
		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return fmt.Errorf("confirm booking: %w", err)
		}

		released, err = s.removeOverlappingWaitlists(ctx, tx, booking.UserID, conf)
		if err != nil {
			return err
		}
		conference = conf.Name
		userID = booking.UserID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if refused != nil {
		return nil, refused
	}

	s.log.Info().
		Str("booking_id", bookingID).
		Str("user_id", userID).
		Str("conference", conference).
		Msg("waitlisted booking confirmed")
	s.notifyReleased(ctx, released)
	return &model.BookingRef{BookingID: bookingID}, nil
}

// removeOverlappingWaitlists cancels the user's waitlisted bookings for other
// conferences whose window intersects conf. A user confirmed into a time slot
// gives up every competing place in line. The returned bookings carry their
// state from before the release.
func (s *BookingService) removeOverlappingWaitlists(
	ctx context.Context,
	tx repository.Tx,
	userID string,
	conf *model.Conference,
) ([]*model.UserBooking, error) {
	overlapping, err := findOverlapping(ctx, tx, userID, conf.Window(), conf.Name, model.StatusWaitlist)
	if err != nil {
		return nil, fmt.Errorf("find overlapping waitlists: %w", err)
	}

	for _, ub := range overlapping {
		b := ub.Booking
		b.Status = model.StatusCancelled
		b.ConfirmExpiresAt = nil
		if err := tx.UpdateBooking(ctx, &b); err != nil {
			return nil, fmt.Errorf("release waitlist booking %s: %w", b.ID, err)
		}
	}
	return overlapping, nil
}

func (s *BookingService) notifyReleased(ctx context.Context, released []*model.UserBooking) {
	for _, b := range released {
		s.log.Info().
			Str("booking_id", b.ID).
			Str("user_id", b.UserID).
			Str("conference", b.ConferenceName).
			Msg("overlapping waitlist booking released")
		if b.ConfirmExpiresAt != nil {
			s.notify(ctx, b.ConferenceName, b.ID, model.ReasonWindowReleased)
		}
	}
}

func (s *BookingService) notify(ctx context.Context, conference, bookingID string, reason model.PromotionReason) {
	if s.notifier == nil {
		return
	}
	event := model.PromotionEvent{
		Conference: conference,
		BookingID:  bookingID,
		Reason:     reason,
		At:         s.now(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		// Lazy maintenance on the next read still promotes.
		s.log.Warn().Err(err).
			Str("conference", conference).
			Str("reason", string(reason)).
			Msg("failed to publish promotion event")
	}
}
