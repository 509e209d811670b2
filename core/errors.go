package core

import "errors"

var (
	// ErrInitialization indicates the engine could not be constructed:
	// bad capacity, unknown backend kind, or invalid physics parameters.
	// Fatal; there is no silent fallback to a degraded mode.
	ErrInitialization = errors.New("engine initialization failed")

	// ErrCapacityExceeded indicates an allocation would push the live
	// population past the configured maximum. Recoverable: callers clamp
	// and report the shortfall.
	ErrCapacityExceeded = errors.New("object capacity exceeded")

	// ErrConcurrencyViolation indicates a step was requested while a
	// prior dispatch had not been awaited. The request is rejected,
	// never queued.
	ErrConcurrencyViolation = errors.New("step already in flight")

	// ErrObjectNotFound indicates a lookup for a dead or unknown ID.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidObject indicates a non-physical allocation request
	// (non-positive mass or radius). Recoverable: the store is left
	// unchanged.
	ErrInvalidObject = errors.New("invalid object parameters")

	// ErrCascadeUnavailable indicates a forced cascade could not find
	// two live satellites to collide.
	ErrCascadeUnavailable = errors.New("not enough live satellites to force a cascade")
)
