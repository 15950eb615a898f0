package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeviceMismatch     = errors.New("device does not match binding")
	ErrPasswordReused     = errors.New("password was used recently")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNotModified        = errors.New("not modified")
)
