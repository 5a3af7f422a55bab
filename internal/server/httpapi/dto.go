package httpapi

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,trimmed_email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required,trimmed_email"`
	OTP   string `json:"otp" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,trimmed_email"`
	Password string `json:"password" binding:"required"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,trimmed_email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,trimmed_email"`
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6,max=72"`
}

type messageBody struct {
	Message string `json:"message"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type sessionBody struct {
	AccessToken        string `json:"accessToken"`
	RefreshToken       string `json:"refreshToken"`
	ExpiresIn          int64  `json:"expiresIn"`
	RefreshTokenExpiry string `json:"refreshTokenExpiry"`
}

type userBody struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newSessionBody(s *services.Session) sessionBody {
	return sessionBody{
		AccessToken:        s.AccessToken,
		RefreshToken:       s.RefreshToken,
		ExpiresIn:          int64(s.ExpiresIn / time.Second),
		RefreshTokenExpiry: s.RefreshExpiresAt.UTC().Format(time.RFC3339),
	}
}

func newUserBody(u *models.User) userBody {
	return userBody{ID: u.ID, Name: u.DisplayName, Email: u.Email, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
