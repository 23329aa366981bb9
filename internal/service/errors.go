package service

import (
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/conference-booking/internal/repository"
)

// Domain errors. Every failure returned by the services wraps exactly one of
// these, so callers classify with errors.Is.
var (
	// ErrNotFound: a referenced user, conference or booking does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the request breaks a booking rule (duplicate or
	// overlapping booking, re-cancel, confirming a non-waitlisted booking).
	ErrConflict = errors.New("conflict")
	// ErrExpired: confirmation attempted without a live window.
	ErrExpired = errors.New("confirmation window expired")
	// ErrInvalid: the request carries values the domain rejects.
	ErrInvalid = errors.New("invalid request")
)

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// lookup turns a store ErrNotFound into the domain ErrNotFound for what.
func lookup(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("%s", what)
	}
	return err
}
