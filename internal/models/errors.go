package models

import "errors"

// Domain error taxonomy. Handlers map these onto HTTP status codes; the
// websocket layer maps them onto error events. None of them are retried
// automatically.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state for this operation")
	ErrAuctionEnded      = errors.New("auction has ended")
	ErrBelowMinimum      = errors.New("bid below current price plus step")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
)
