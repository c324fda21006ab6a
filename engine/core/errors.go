package core

import (
	"errors"
)

// Failure taxonomy for the loading pipeline. Callers classify outcomes
// with errors.Is against these sentinels regardless of how deeply the
// underlying cause was wrapped.
var (
	// ErrCancelled marks a caller-initiated abort. Not an error state
	// for metrics purposes.
	ErrCancelled = errors.New("cancelled")
	// ErrTimeout marks a bounded operation that exceeded its budget.
	ErrTimeout = errors.New("timed out")
	// ErrDecode marks malformed or truncated source data.
	ErrDecode = errors.New("decode failure")
	// ErrResourceExhausted marks an allocation failure or memory pressure.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrWorkerUnavailable marks a task pool degraded to zero usable
	// workers. Loaders fall back to same-goroutine execution.
	ErrWorkerUnavailable = errors.New("no usable workers")
	// ErrDisposed marks an operation submitted to an already disposed pool.
	ErrDisposed = errors.New("pool disposed")
	// ErrInternal marks an unexpected failure. Always logged with context.
	ErrInternal = errors.New("internal error")
)

// UserMessage maps an error from the taxonomy above to a human-readable
// message suitable for surfacing in a viewer UI.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "loading was cancelled"
	case errors.Is(err, ErrTimeout):
		return "loading took too long; try again or reduce the model size"
	case errors.Is(err, ErrDecode):
		return "the model data is malformed or truncated"
	case errors.Is(err, ErrResourceExhausted):
		return "reduce model size or enable low-memory mode"
	case errors.Is(err, ErrWorkerUnavailable):
		return "background decoding is unavailable; loading may be slow"
	case errors.Is(err, ErrDisposed):
		return "the loader has been shut down"
	default:
		return "an unexpected error occurred while loading the model"
	}
}
