package service

import (
	"context"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
	"github.com/Shivanand-hulikatti/conference-booking/internal/repository"
)

// Overlaps reports whether two half-open windows intersect. Windows that
// only touch (one ends exactly when the other starts) do not overlap.
func Overlaps(a, b model.Window) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// findOverlapping returns the user's bookings in one of statuses whose
// conference window intersects window. Bookings for the conference named
// exclude are skipped.
func findOverlapping(
	ctx context.Context,
	tx repository.Tx,
	userID string,
	window model.Window,
	exclude string,
	statuses ...model.BookingStatus,
) ([]*model.UserBooking, error) {
	bookings, err := tx.ListUserBookings(ctx, userID, statuses...)
	if err != nil {
		return nil, err
	}

	var out []*model.UserBooking
	for _, b := range bookings {
		if b.ConferenceName == exclude {
			continue
		}
		if Overlaps(b.Window, window) {
			out = append(out, b)
		}
	}
	return out, nil
}
