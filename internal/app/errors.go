package app

import "errors"

var (
	// ErrEmptyMessage rejects blank input before any model call.
	ErrEmptyMessage = errors.New("message required")
	// ErrUserRequired rejects turns without an authenticated user.
	ErrUserRequired = errors.New("user required")
	// ErrDailyLimitReached blocks turns once the daily cap is hit. It is a
	// validation rejection, not a failure: nothing upstream is invoked.
	ErrDailyLimitReached = errors.New("daily message limit reached")
	// ErrTurnInFlight rejects a submit while the user's previous turn is
	// still running.
	ErrTurnInFlight = errors.New("a turn is already in flight")
	// ErrBookRequired rejects library saves without a usable book.
	ErrBookRequired = errors.New("book with id and title required")
)
