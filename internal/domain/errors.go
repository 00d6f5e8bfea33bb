package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrInvalidRule     = errors.New("invalid rule")
	ErrDeadEndpoint    = errors.New("endpoint permanently rejected")
)
