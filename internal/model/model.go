// Package model defines the core domain types for the conference booking system.
package model

import "time"

// BookingStatus is the lifecycle state of a Booking.
type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusWaitlist  BookingStatus = "waitlist"
	StatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusWaitlist, StatusCancelled:
		return true
	}
	return false
}

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Conference is a scheduled event with a finite number of seats.
//
// AvailableSlots counts seats not yet promised to a confirmed booking and
// never leaves the range [0, Capacity].
type Conference struct {
	Name           string    `json:"name"`
	Location       string    `json:"location"`
	Topics         []string  `json:"topics"`
	StartTime      time.Time `json:"start_timestamp"`
	EndTime        time.Time `json:"end_timestamp"`
	Capacity       int       `json:"capacity"`
	AvailableSlots int       `json:"available_slots"`
	CreatedAt      time.Time `json:"created_at"`

	// WaitlistSeq is the last sequence number handed to a booking entering
	// this conference's waitlist.
	WaitlistSeq int64 `json:"-"`
	Version     int64 `json:"-"`
}

// Window returns the conference's time window.
func (c *Conference) Window() Window {
	return Window{Start: c.StartTime, End: c.EndTime}
}

// NextWaitlistSeq advances and returns the waitlist sequence counter.
func (c *Conference) NextWaitlistSeq() int64 {
	c.WaitlistSeq++
	return c.WaitlistSeq
}

// User is an attendee who can hold bookings.
type User struct {
	UserID           string    `json:"user_id"`
	InterestedTopics []string  `json:"interested_topics"`
	CreatedAt        time.Time `json:"created_at"`
}

// Booking ties one user to one conference.
//
// WaitlistSeq orders the waitlist: lower value means higher priority, ties
// are broken by ID. ConfirmExpiresAt is non-nil only while a waitlisted
// booking holds a live confirmation window.
type Booking struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	ConferenceName   string        `json:"conference_name"`
	Status           BookingStatus `json:"status"`
	BookedAt         time.Time     `json:"booked_at"`
	WaitlistedAt     *time.Time    `json:"waitlisted_at,omitempty"`
	WaitlistSeq      int64         `json:"-"`
	ConfirmExpiresAt *time.Time    `json:"confirm_expires_at,omitempty"`
	Version          int64         `json:"-"`
}

// Active reports whether the booking still holds or waits for a seat.
func (b *Booking) Active() bool {
	return b.Status == StatusConfirmed || b.Status == StatusWaitlist
}

// Confirmable reports whether the booking is waitlisted with a granted window.
func (b *Booking) Confirmable() bool {
	return b.Status == StatusWaitlist && b.ConfirmExpiresAt != nil
}

// UserBooking is a booking joined with the time window of its conference.
type UserBooking struct {
	Booking
	Window Window
}

// PromotionReason says why a conference's waitlist may now promote someone.
type PromotionReason string

const (
	// ReasonSlotFreed: a confirmed booking was cancelled.
	ReasonSlotFreed PromotionReason = "slot_freed"
	// ReasonWindowReleased: a booking holding a confirmation window left
	// the waitlist without confirming.
	ReasonWindowReleased PromotionReason = "window_released"
)

// PromotionEvent is published after a commit that may let the next
// waitlisted booking of Conference receive a confirmation window.
type PromotionEvent struct {
	Conference string          `json:"conference"`
	BookingID  string          `json:"booking_id"`
	Reason     PromotionReason `json:"reason"`
	At         time.Time       `json:"at"`
}

// CreateUserRequest is the payload for registering a user.
type CreateUserRequest struct {
	UserID           string `json:"user_id" validate:"required,alphanum,max=64"`
	InterestedTopics string `json:"interested_topics" validate:"required,topics=50"`
}

// CreateConferenceRequest is the payload for registering a conference.
type CreateConferenceRequest struct {
	Name           string    `json:"name" validate:"required,alnumspace,max=255"`
	Location       string    `json:"location" validate:"required,alnumspace,max=255"`
	Topics         string    `json:"topics" validate:"required,topics=10"`
	StartTimestamp time.Time `json:"start_timestamp" validate:"required"`
	EndTimestamp   time.Time `json:"end_timestamp" validate:"required,gtfield=StartTimestamp"`
	AvailableSlots int       `json:"available_slots" validate:"gt=0"`
}

// CreateBookingRequest is the payload for requesting a seat.
type CreateBookingRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	ConferenceName string `json:"conference_name" validate:"required"`
}

// BookingResult is returned by CreateBooking.
type BookingResult struct {
	BookingID string        `json:"booking_id"`
	Status    BookingStatus `json:"status"`
}

// BookingRef identifies the booking an operation acted on.
type BookingRef struct {
	BookingID string `json:"booking_id"`
}

// BookingStatusResult is returned by GetBookingStatus.
type BookingStatusResult struct {
	BookingID     string        `json:"booking_id"`
	Status        BookingStatus `json:"status"`
	IsConfirmable bool          `json:"is_confirmable"`
}

// Response is the JSON envelope for every API reply.
type Response struct {
	Status string         `json:"status"`
	Error  *ErrorResponse `json:"error,omitempty"`
	Data   any            `json:"data,omitempty"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}
