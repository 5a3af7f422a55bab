package common

// AuthorizationHeaderName carries the bearer access token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token in the Authorization header.
const BearerPrefix = "Bearer "

// Token audiences. An access token never passes for a refresh token and
// vice versa.
const (
	AudienceAccess  = "access"
	AudienceRefresh = "refresh"
)

// RequestIDHeaderName is echoed back on every HTTP response.
const RequestIDHeaderName = "X-Request-ID"
