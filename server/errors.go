package server

import (
	"net/http"

	"github.com/siftlab/sift/errors"
)

// statusForError maps domain sentinel errors onto HTTP status codes.
// Unknown errors fall through to 500.
func statusForError(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsInvalidRequest(err), errors.Is(err, errors.ErrInvalidParent):
		return http.StatusBadRequest
	case errors.IsConflict(err), errors.Is(err, errors.ErrInvariantViolation):
		return http.StatusConflict
	case errors.Is(err, errors.ErrUpdateInFlight):
		return http.StatusTooManyRequests
	case errors.Is(err, errors.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, errors.ErrJobFailed):
		return http.StatusBadGateway
	case errors.Is(err, errors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
