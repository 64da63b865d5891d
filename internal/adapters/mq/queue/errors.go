package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("rescore queue full")
	ErrClosed = errors.New("rescore queue closed")
)
