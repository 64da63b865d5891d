package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("book not found")
	ErrAlreadyExists = errors.New("book already exists")
	ErrReadOnly      = errors.New("write in read-only transaction")
	ErrClosed        = errors.New("store closed")
)
