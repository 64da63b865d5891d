package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/readq/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrAdminOff     = errors.New("admin routes are disabled")
)

// wrap annotates err with the failing operation.
func wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// wrapKind tags cause with a sentinel kind.
func wrapKind(op string, kind, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// statusOf maps service errors to an HTTP status and error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrOwnership):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInconsistentRank):
		return http.StatusConflict, "inconsistent_rank"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}
