package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/gin-gonic/gin"
)

// bind decodes and validates the JSON body into req, answering 400 itself
// on failure.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Message: validationMessage(err), Code: CodeValidation})
		return false
	}
	return true
}

// maxPasswordBytes is the bcrypt input limit; the validator counts runes.
const maxPasswordBytes = 72

func passwordFits(c *gin.Context, label, password string) bool {
	if len(password) > maxPasswordBytes {
		c.JSON(http.StatusBadRequest, errorBody{Message: label + " must be at most 72 bytes.", Code: CodeValidation})
		return false
	}
	return true
}

func (s *HTTPServer) register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) || !passwordFits(c, "Password", req.Password) {
		return
	}

	if err := s.sessions.Register(c.Request.Context(), req.Name, normalizeEmail(req.Email), req.Password); err != nil {
		s.fail(c, opRegister, err)
		return
	}
	c.JSON(http.StatusCreated, messageBody{Message: "Registration initiated. OTP sent to your email."})
}

func (s *HTTPServer) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bind(c, &req) {
		return
	}

	if _, err := s.sessions.VerifyOTP(c.Request.Context(), normalizeEmail(req.Email), req.OTP); err != nil {
		s.fail(c, opVerifyOTP, err)
		return
	}
	c.JSON(http.StatusOK, messageBody{Message: "Registration verified successfully. You can now log in."})
}

func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}

	sess, err := s.sessions.Login(c.Request.Context(), normalizeEmail(req.Email), req.Password)
	if err != nil {
		s.fail(c, opLogin, err)
		return
	}
	c.JSON(http.StatusOK, newSessionBody(sess))
}

// refreshToken rotates the refresh token. An access token may accompany the
// request; it may be expired but must be genuine and belong to the same user.
func (s *HTTPServer) refreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if !bind(c, &req) {
		return
	}

	if c.GetHeader(common.AuthorizationHeaderName) != "" && !s.checkCompanionAccessToken(c, req.RefreshToken) {
		return
	}

	sess, err := s.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.fail(c, opRefresh, err)
		return
	}
	c.JSON(http.StatusOK, newSessionBody(sess))
}

func (s *HTTPServer) checkCompanionAccessToken(c *gin.Context, refreshToken string) bool {
	token, ok := bearerToken(c)
	if !ok {
		abort(c, http.StatusUnauthorized, CodeAccessTokenRequired, "Access token required.")
		return false
	}

	access, err := s.issuer.Verify(token, common.AudienceAccess)
	switch {
	case errors.Is(err, common.ErrWrongAudience):
		abort(c, http.StatusUnauthorized, CodeInvalidTokenType, "Invalid token type.")
		return false
	case err != nil && !errors.Is(err, common.ErrTokenExpired):
		abort(c, http.StatusUnauthorized, CodeInvalidToken, "Invalid or expired token.")
		return false
	}

	// an unverifiable refresh token is reported by the rotation itself
	if refresh, err := s.issuer.Verify(refreshToken, common.AudienceRefresh); refresh != nil && (err == nil || errors.Is(err, common.ErrTokenExpired)) {
		if refresh.UserID != access.UserID {
			abort(c, http.StatusForbidden, CodeInvalidRefreshToken, "Invalid refresh token.")
			return false
		}
	}
	return true
}

func (s *HTTPServer) logout(c *gin.Context) {
	var req refreshTokenRequest
	if !bind(c, &req) {
		return
	}

	if err := s.sessions.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		s.fail(c, opLogout, err)
		return
	}
	c.JSON(http.StatusOK, messageBody{Message: "Logged out successfully."})
}

func (s *HTTPServer) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bind(c, &req) {
		return
	}

	if err := s.sessions.ForgotPassword(c.Request.Context(), normalizeEmail(req.Email)); err != nil {
		s.fail(c, opForgotPassword, err)
		return
	}
	c.JSON(http.StatusOK, messageBody{Message: "If that email exists, an OTP has been sent."})
}

func (s *HTTPServer) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bind(c, &req) || !passwordFits(c, "New password", req.NewPassword) {
		return
	}

	err := s.sessions.ResetPassword(c.Request.Context(), normalizeEmail(req.Email), req.OTP, req.NewPassword)
	if err != nil {
		s.fail(c, opResetPassword, err)
		return
	}
	c.JSON(http.StatusOK, messageBody{Message: "Password has been reset successfully."})
}

func (s *HTTPServer) me(c *gin.Context) {
	id, ok := identityFrom(c)
	if !ok {
		abort(c, http.StatusUnauthorized, CodeAccessTokenRequired, "Access token required.")
		return
	}

	u, err := s.sessions.CurrentUser(c.Request.Context(), id.UserID)
	if err != nil {
		s.fail(c, opMe, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserBody(u)})
}
