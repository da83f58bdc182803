package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siftlab/sift/errors"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errors.NewNotFound("subset %d", 7), http.StatusNotFound},
		{"invalid request", errors.NewInvalidRequest("bad page"), http.StatusBadRequest},
		{"invalid parent", errors.ErrInvalidParent, http.StatusBadRequest},
		{"conflict", errors.Wrap(errors.ErrConflict, "stale version"), http.StatusConflict},
		{"invariant violation", errors.ErrInvariantViolation, http.StatusConflict},
		{"update in flight", errors.ErrUpdateInFlight, http.StatusTooManyRequests},
		{"session closed", errors.ErrSessionClosed, http.StatusGone},
		{"job failed", errors.Wrap(errors.ErrJobFailed, "job 3"), http.StatusBadGateway},
		{"timeout", errors.ErrTimeout, http.StatusGatewayTimeout},
		{"transport", errors.Wrap(errors.ErrTransport, "connection refused"), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}
