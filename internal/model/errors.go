package model

import "errors"

// Error kinds surfaced to callers. Anything not wrapping one of these is
// treated as an internal error.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrConfiguration       = errors.New("configuration error")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrAlreadyRegistered   = errors.New("already registered for this ride level")
)
