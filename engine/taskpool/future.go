package taskpool

import (
	"context"
	"sync"
)

// Future is the caller-side handle of a submitted task. It settles exactly
// once, on the first terminal message observed for the task.
type Future struct {
	id   uint64
	done chan struct{}

	mu     sync.Mutex
	result any
	err    error
}

func newFuture(id uint64) *Future {
	return &Future{
		id:   id,
		done: make(chan struct{}),
	}
}

func (f *Future) ID() uint64 {
	return f.id
}

// settle stores the outcome. Repeated settles are ignored so a late worker
// result cannot overwrite a cancellation.
func (f *Future) settle(result any, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return false
	default:
	}
	f.result = result
	f.err = err
	close(f.done)
	return true
}

// Await blocks until the task settles or ctx is done, whichever happens
// first. Awaiting again after settlement returns the same outcome.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether a terminal outcome has been recorded.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
