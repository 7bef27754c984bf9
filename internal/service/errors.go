package service

import "errors"

var (
	// ErrNotFound is returned when a key does not exist for the calling user.
	ErrNotFound = errors.New("api key not found")
	// ErrInvalidCredentials is returned by Login and ValidateAccessToken.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrKeyRevoked is returned when regenerating a key that is already revoked.
	ErrKeyRevoked = errors.New("api key revoked")
	// ErrNotAuthenticated is returned when an operation needs a live session.
	ErrNotAuthenticated = errors.New("not authenticated")
)
