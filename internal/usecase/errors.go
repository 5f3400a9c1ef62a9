package usecase

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrMatchNotFound = errors.New("match not found")
	ErrMatchClosed   = errors.New("match already closed")
	ErrBusy          = errors.New("operation already in progress")
	ErrDependency    = errors.New("dependency unavailable")
	ErrInternal      = errors.New("internal error")
)
