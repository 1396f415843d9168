package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrDataUnavailable marks an expected gap: no price data exists near the
	// requested time. Non-fatal; the market is skipped, not the scan.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrTransientUpstream marks a retryable upstream failure (network,
	// rate limit). After bounded retries it degrades to ErrDataUnavailable
	// for the affected market only.
	ErrTransientUpstream = errors.New("transient upstream error")
	// ErrInvalidSpec marks an invalid reversal window spec. Fatal at scan
	// start, before any network call.
	ErrInvalidSpec = errors.New("invalid window spec")
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)
