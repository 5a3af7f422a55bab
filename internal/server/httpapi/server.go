// Package httpapi exposes the session lifecycle as a JSON API under
// /api/auth, built on gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

const BasePath = "/api/auth"

// Pinger reports store health for /healthz. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HTTPServer struct {
	address         string
	sessions        *services.SessionService
	issuer          *auth.Issuer
	pinger          Pinger
	logger          logging.Logger
	shutdownTimeout time.Duration
}

// NewHTTPServer builds the server. pinger may be nil, in which case the
// health endpoint always reports ok.
func NewHTTPServer(a string, l logging.Logger, sessions *services.SessionService, issuer *auth.Issuer, pinger Pinger) *HTTPServer {
	registerValidators()
	return &HTTPServer{
		address:         a,
		sessions:        sessions,
		issuer:          issuer,
		pinger:          pinger,
		logger:          l.With("module", "http_server"),
		shutdownTimeout: 10 * time.Second,
	}
}

// Router returns the gin engine with every route and middleware installed.
func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), s.requestLogger(), gin.CustomRecovery(s.recover))

	r.GET("/healthz", s.health)

	api := r.Group(BasePath)
	api.POST("/register", s.register)
	api.POST("/verify-otp", s.verifyOTP)
	api.POST("/login", s.login)
	api.POST("/refresh-token", s.refreshToken)
	api.POST("/logout", s.logout)
	api.POST("/forgot-password", s.forgotPassword)
	api.POST("/reset-password", s.resetPassword)
	api.GET("/me", s.requireAccessToken(), s.me)

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) health(c *gin.Context) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.PingContext(ctx); err != nil {
			s.logger.Warn(ctx, "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) recover(c *gin.Context, p any) {
	s.logger.Error(c.Request.Context(), "panic in handler", "panic", p, "path", c.Request.URL.Path)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Message: "Internal Server Error", Code: CodeInternal})
}
