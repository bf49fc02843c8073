package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrCalculation      = errors.New("invalid calculation input")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrOrderRejected    = errors.New("order rejected by venue")
	ErrFillTimeout      = errors.New("order fill timed out")
	ErrVenueUnreachable = errors.New("venue unreachable")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrContextDone      = errors.New("context cancelled")
	ErrLockHeld         = errors.New("lock already held")
)
