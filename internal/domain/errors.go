package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrContextDone   = errors.New("context cancelled")

	// ErrInvalidParameter marks a malformed strategy parameter value. It is
	// surfaced before any simulation starts; values never coerce silently.
	ErrInvalidParameter = errors.New("invalid strategy parameter")

	// ErrInsufficientData means the candle window is shorter than a strategy's
	// minimum lookback. Callers treat it as a defined no-signal, not a failure.
	ErrInsufficientData = errors.New("insufficient candle data")

	// ErrMarketDataUnavailable is a transient market-data failure; safe to
	// retry with backoff while the bot holds its current state.
	ErrMarketDataUnavailable = errors.New("market data unavailable")

	// ErrSymbolNotFound is permanent: the exchange does not list the symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrOrderRejected means the order executor refused a placement. The bot
	// stays in its current state and the failure is logged and notified.
	ErrOrderRejected = errors.New("order rejected")

	// ErrInvariantViolation is fatal to one simulation run (e.g. negative
	// balance). It aborts that run without touching any other run.
	ErrInvariantViolation = errors.New("simulation invariant violation")
)
