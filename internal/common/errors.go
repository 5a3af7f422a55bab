// Package common defines shared constants and sentinel errors used across
// client and server layers of AuthKeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Token errors.
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrWrongAudience = errors.New("wrong token audience")

	// Registration.
	ErrEmailAlreadyVerified  = errors.New("user already registered")
	ErrNoPendingRegistration = errors.New("no pending registration for this email")

	// One-time passcodes, shared by registration and password reset.
	ErrOTPExpired  = errors.New("otp expired")
	ErrOTPMismatch = errors.New("invalid otp")

	// Sessions.
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")

	// Password reset.
	ErrNoResetRequest = errors.New("no password reset request found")
	ErrSamePassword   = errors.New("new password must differ from the current one")
)
