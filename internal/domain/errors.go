package domain

import "errors"

// Sentinel errors shared across repositories and services. Handlers map these
// to HTTP status codes; everything else becomes an internal error.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrForbidden indicates the caller does not own the requested record.
	ErrForbidden = errors.New("forbidden")

	// ErrQuotaExceeded indicates the monthly allowance is exhausted and no
	// credits are available to cover the request.
	ErrQuotaExceeded = errors.New("generation quota exceeded")

	// ErrInsufficientCredits indicates a credit debit could not be applied
	// because the balance is too low.
	ErrInsufficientCredits = errors.New("insufficient credit balance")

	// ErrStaleTransition indicates a status write was dropped because it would
	// move a job backwards (e.g. a late pending after completed).
	ErrStaleTransition = errors.New("stale status transition")
)
