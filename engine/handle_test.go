package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftlab/sift/errors"
)

func TestHandleResolvesExactlyOnce(t *testing.T) {
	h := newHandle(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.resolve(&Result{JobID: 1}, nil)
			h.resolve(nil, errors.New("late failure"))
		}()
	}
	wg.Wait()

	res, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.JobID)

	// A second Await observes the same outcome
	res, err = h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.JobID)
}

func TestAwaitHonorsContext(t *testing.T) {
	h := newHandle(2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoneClosesOnResolve(t *testing.T) {
	h := newHandle(3)

	select {
	case <-h.Done():
		t.Fatal("done channel closed before resolve")
	default:
	}

	h.resolve(nil, errors.ErrJobFailed)
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel never closed")
	}
}
