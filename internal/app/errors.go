package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrConfigNotFound    = errors.New("configuration not found")
	ErrUnauthorized      = errors.New("authentication required")
	ErrForbidden         = errors.New("access denied")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)
