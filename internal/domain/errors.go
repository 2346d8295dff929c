package domain

import "errors"

// Sentinel errors for the dunning engine. Callers wrap these with %w and
// context; the transport layer maps them to HTTP status codes.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("state conflict")

	ErrTokenNotFound = errors.New("card update token not found")
	ErrTokenExpired  = errors.New("card update token expired")
	ErrTokenUsed     = errors.New("card update token already used")

	// ErrChainExhausted is returned by the scheduler when the attempt number
	// exceeds the policy's max retries.
	ErrChainExhausted = errors.New("retry chain exhausted")
)
