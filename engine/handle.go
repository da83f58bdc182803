package engine

import (
	"context"
	"sync"
)

// Handle is the single completion signal for one submitted job. It resolves
// exactly once, to either a result or an error; repeated Await calls observe
// the same terminal outcome without re-triggering network activity.
type Handle struct {
	jobID int64

	once sync.Once
	done chan struct{}

	// result and err are written once before done is closed and read only
	// after it is closed
	result *Result
	err    error
}

func newHandle(jobID int64) *Handle {
	return &Handle{
		jobID: jobID,
		done:  make(chan struct{}),
	}
}

// JobID returns the engine-side job id for this handle
func (h *Handle) JobID() int64 {
	return h.jobID
}

// resolve records the terminal outcome. Only the first call has any effect.
func (h *Handle) resolve(result *Result, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.done)
	})
}

// Done returns a channel closed when the handle resolves
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Await blocks until the job reaches a terminal state or the context is
// cancelled. Cancelling the context stops waiting but does not cancel the
// engine-side job - no cancel endpoint exists.
func (h *Handle) Await(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.result, h.err
	}
}
