package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	identityKey  = "identity"
	requestIDKey = "request_id"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(common.RequestIDHeaderName)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(common.RequestIDHeaderName, id)
		c.Next()
	}
}

func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. ok is false when the header is absent or malformed.
func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader(common.AuthorizationHeaderName)
	if len(h) < len(common.BearerPrefix) || !strings.EqualFold(h[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", false
	}
	t := strings.TrimSpace(h[len(common.BearerPrefix):])
	return t, t != ""
}

// requireAccessToken admits requests carrying a valid access token and
// stores its identity in the context.
func (s *HTTPServer) requireAccessToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abort(c, http.StatusUnauthorized, CodeAccessTokenRequired, "Access token required.")
			return
		}

		id, err := s.issuer.Verify(token, common.AudienceAccess)
		switch {
		case errors.Is(err, common.ErrTokenExpired):
			abort(c, http.StatusUnauthorized, CodeTokenExpired, "Access token expired.")
			return
		case errors.Is(err, common.ErrWrongAudience):
			abort(c, http.StatusUnauthorized, CodeInvalidTokenType, "Invalid token type.")
			return
		case err != nil:
			abort(c, http.StatusUnauthorized, CodeInvalidToken, "Invalid or expired token.")
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Message: message, Code: code})
}
