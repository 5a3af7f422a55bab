// Package models holds the persistent records of the credential store.
package models

import "time"

// User is a verified account. Only created by a successful OTP verification.
type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
