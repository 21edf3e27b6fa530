package model

import "errors"

// Error taxonomy shared across the service. Handlers map these onto HTTP
// status codes; anything unrecognized is treated as an internal error.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("resource conflict")
	ErrBadRequest      = errors.New("bad request")
)
