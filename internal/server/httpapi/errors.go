package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Codes returned in error bodies for client-side handling.
const (
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidTokenType    = "INVALID_TOKEN_TYPE"
	CodeAccessTokenRequired = "ACCESS_TOKEN_REQUIRED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

type operation string

const (
	opRegister       operation = "register"
	opVerifyOTP      operation = "verify-otp"
	opLogin          operation = "login"
	opRefresh        operation = "refresh-token"
	opLogout         operation = "logout"
	opForgotPassword operation = "forgot-password"
	opResetPassword  operation = "reset-password"
	opMe             operation = "me"
)

type errorMapping struct {
	err     error
	op      operation // empty matches every operation
	status  int
	code    string
	message string
}

var errorTable = []errorMapping{
	{err: common.ErrEmailAlreadyVerified, status: http.StatusBadRequest, message: "User already registered. Please login."},
	{err: common.ErrNoPendingRegistration, status: http.StatusBadRequest, message: "No pending registration for this email."},
	{err: common.ErrOTPExpired, op: opVerifyOTP, status: http.StatusBadRequest, message: "OTP expired. Please register again."},
	{err: common.ErrOTPExpired, op: opResetPassword, status: http.StatusBadRequest, message: "OTP expired. Please request a new one."},
	{err: common.ErrOTPMismatch, status: http.StatusBadRequest, message: "Invalid OTP."},
	{err: common.ErrInvalidCredentials, status: http.StatusBadRequest, code: CodeInvalidCredentials, message: "Invalid credentials."},
	{err: common.ErrRefreshTokenNotFound, status: http.StatusForbidden, code: CodeInvalidRefreshToken, message: "Refresh token not found."},
	{err: common.ErrRefreshTokenExpired, status: http.StatusUnauthorized, code: CodeRefreshTokenExpired, message: "Refresh token expired. Please log in again."},
	{err: common.ErrInvalidRefreshToken, status: http.StatusForbidden, code: CodeInvalidRefreshToken, message: "Invalid refresh token."},
	{err: common.ErrUserNotFound, op: opResetPassword, status: http.StatusBadRequest, code: CodeUserNotFound, message: "User not found."},
	{err: common.ErrUserNotFound, status: http.StatusUnauthorized, code: CodeUserNotFound, message: "User not found."},
	{err: common.ErrNoResetRequest, status: http.StatusBadRequest, message: "No password reset request found for this email."},
	{err: common.ErrSamePassword, status: http.StatusBadRequest, message: "New password must be different from the current password."},
}

var internalMessages = map[operation]string{
	opRegister:       "Error during registration.",
	opVerifyOTP:      "Error verifying OTP.",
	opLogin:          "Error during login.",
	opRefresh:        "Error refreshing token.",
	opLogout:         "Error during logout.",
	opForgotPassword: "Error initiating password reset.",
	opResetPassword:  "Error resetting password.",
	opMe:             "Error loading user.",
}

func mapError(op operation, err error) (int, errorBody) {
	for _, m := range errorTable {
		if (m.op == "" || m.op == op) && errors.Is(err, m.err) {
			return m.status, errorBody{Message: m.message, Code: m.code}
		}
	}
	return http.StatusInternalServerError, errorBody{Message: internalMessages[op], Code: CodeInternal}
}

// fail writes the response for err. Errors outside the table are logged.
func (s *HTTPServer) fail(c *gin.Context, op operation, err error) {
	status, body := mapError(op, err)
	if status == http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "op", string(op), "error", err, "request_id", c.GetString(requestIDKey))
	}
	c.JSON(status, body)
}

var fieldMessages = map[string]string{
	"Name":         "Name is required.",
	"Email":        "Valid email is required.",
	"OTP":          "OTP is required.",
	"RefreshToken": "Refresh token is required.",
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid request body."
	}

	fe := ve[0]
	switch fe.Field() {
	case "Password", "NewPassword":
		label := "Password"
		if fe.Field() == "NewPassword" {
			label = "New password"
		}
		switch fe.Tag() {
		case "required":
			return label + " is required."
		case "min":
			return label + " must be at least 6 characters."
		default:
			return label + " must be at most 72 bytes."
		}
	}
	if msg, ok := fieldMessages[fe.Field()]; ok {
		return msg
	}
	return "Invalid request body."
}

var registerValidatorsOnce sync.Once

// registerValidators adds trimmed_email: an email check that tolerates the
// surrounding whitespace stripped later by normalizeEmail.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("trimmed_email", func(fl validator.FieldLevel) bool {
			return v.Var(strings.TrimSpace(fl.Field().String()), "email") == nil
		})
	})
}
