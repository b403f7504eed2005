package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidPassword    = errors.New("invalid_password")
	ErrPasswordUnchanged  = errors.New("password_unchanged")
	ErrInvalidSession     = errors.New("invalid_session")
	ErrSessionExpired     = errors.New("session_expired")
	ErrSessionRevoked     = errors.New("session_revoked")
)
