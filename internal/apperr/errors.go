package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// Cycle failure kinds.
	ErrNetwork         = errors.New("network error")
	ErrCancelled       = errors.New("cancelled")
	ErrDeserialization = errors.New("deserialization error")
	ErrIO              = errors.New("io error")
)
