package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrSigningFailed  = errors.New("signing failed")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrContextDone    = errors.New("context cancelled")
	ErrExposureCap    = errors.New("exposure cap reached")
	ErrImbalanceCap   = errors.New("hedge imbalance cap reached")
	ErrStaleQuote     = errors.New("stale quote")
	ErrWindowClosed   = errors.New("window closed")
	ErrBelowMinSize   = errors.New("below exchange minimum notional")
	ErrUnknownReserve = errors.New("unknown reservation")
)
