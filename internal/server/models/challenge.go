package models

import "time"

// PendingRegistration holds a not yet verified sign-up, keyed by email.
type PendingRegistration struct {
	Email        string    `json:"email"`
	DisplayName  string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	OTPCode      string    `json:"otp"`
	OTPExpiresAt time.Time `json:"otpExpiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Expired reports whether the OTP is no longer acceptable at now. The code is
// still valid at exactly OTPExpiresAt.
func (p *PendingRegistration) Expired(now time.Time) bool {
	return now.After(p.OTPExpiresAt)
}

// PasswordReset is an outstanding forgot-password request, keyed by email.
type PasswordReset struct {
	Email        string    `json:"email"`
	OTPCode      string    `json:"otp"`
	OTPExpiresAt time.Time `json:"otpExpiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Expired reports whether the OTP is no longer acceptable at now.
func (p *PasswordReset) Expired(now time.Time) bool {
	return now.After(p.OTPExpiresAt)
}
