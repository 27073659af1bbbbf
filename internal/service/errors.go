package service

import "errors"

var (
	// ErrNotFound is returned when a transaction id does not exist.
	ErrNotFound = errors.New("transaction not found")
	// ErrValidation is returned for malformed ledger input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidLogin is returned when a username/password pair is rejected.
	ErrInvalidLogin = errors.New("invalid credentials")
)
