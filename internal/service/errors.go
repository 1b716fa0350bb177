package service

import "errors"

// Error taxonomy shared by all services. Handlers map these to HTTP
// statuses; everything else is a 500.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrValidation          = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("scorer unavailable")
)
