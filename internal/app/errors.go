package service

import (
	"errors"
	"fmt"

	repository "github.com/okian/readq/internal/adapters/repository"
)

// Errors surfaced to callers of the service.
var (
	ErrNotFound         = errors.New("not found")
	ErrOwnership        = errors.New("book belongs to another user")
	ErrInconsistentRank = errors.New("inconsistent rank state")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotStarted       = errors.New("service not started")
)

// translate maps store errors onto the service taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
