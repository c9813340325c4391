package sniper

import "errors"

var (
	// ErrInvalidConfig is returned before any worker spawns.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTooManyPollErrors ends a worker after MaxPollErrors consecutive
	// transient failures. Reported, not silently retried forever.
	ErrTooManyPollErrors = errors.New("too many consecutive poll errors")

	// ErrCheckoutTimeout marks a checkout step that blew its deadline.
	ErrCheckoutTimeout = errors.New("checkout step timed out")

	// ErrSecondWinner means two workers both reported success. The
	// single-winner invariant is broken, the whole run is fatal.
	ErrSecondWinner = errors.New("second worker reported success")
)
