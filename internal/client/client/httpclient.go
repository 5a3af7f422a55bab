package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/client/repositories/tokens"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"golang.org/x/sync/singleflight"
)

type HTTPClient struct {
	baseURL string
	http    *http.Client
	store   tokens.Store
	flight  singleflight.Group
	now     func() time.Time
}

func NewHTTPClient(baseURL string, timeout time.Duration, store tokens.Store) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		store:   store,
		now:     time.Now,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type sessionResponse struct {
	AccessToken        string `json:"accessToken"`
	RefreshToken       string `json:"refreshToken"`
	ExpiresIn          int64  `json:"expiresIn"`
	RefreshTokenExpiry string `json:"refreshTokenExpiry"`
}

func (c *HTTPClient) toTokens(email string, s *sessionResponse) *tokens.Tokens {
	t := &tokens.Tokens{
		Email:           email,
		AccessToken:     s.AccessToken,
		RefreshToken:    s.RefreshToken,
		AccessExpiresAt: c.now().Add(time.Duration(s.ExpiresIn) * time.Second).UTC().Truncate(time.Second),
	}
	if exp, err := time.Parse(time.RFC3339, s.RefreshTokenExpiry); err == nil {
		t.RefreshExpiresAt = exp.UTC()
	}
	return t
}

// do sends body as JSON and decodes a 2xx answer into out. Other statuses
// become *APIError.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if json.Unmarshal(data, &e) != nil || e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: e.Code, Message: e.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) message(ctx context.Context, path string, body any) (string, error) {
	var m messageResponse
	if err := c.do(ctx, http.MethodPost, path, body, "", &m); err != nil {
		return "", err
	}
	return m.Message, nil
}

func (c *HTTPClient) Register(ctx context.Context, name, email, password string) (string, error) {
	return c.message(ctx, "/register", map[string]string{"name": name, "email": email, "password": password})
}

func (c *HTTPClient) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	return c.message(ctx, "/verify-otp", map[string]string{"email": email, "otp": otp})
}

func (c *HTTPClient) ForgotPassword(ctx context.Context, email string) (string, error) {
	return c.message(ctx, "/forgot-password", map[string]string{"email": email})
}

func (c *HTTPClient) ResetPassword(ctx context.Context, email, otp, newPassword string) (string, error) {
	return c.message(ctx, "/reset-password", map[string]string{"email": email, "otp": otp, "newPassword": newPassword})
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*tokens.Tokens, error) {
	var s sessionResponse
	if err := c.do(ctx, http.MethodPost, "/login", map[string]string{"email": email, "password": password}, "", &s); err != nil {
		return nil, err
	}

	t := c.toTokens(strings.ToLower(strings.TrimSpace(email)), &s)
	if err := c.store.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (c *HTTPClient) Session(ctx context.Context) (*tokens.Tokens, error) {
	t, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotLoggedIn
	}
	return t, nil
}

// Refresh rotates the stored token pair.
func (c *HTTPClient) Refresh(ctx context.Context) (*tokens.Tokens, error) {
	t, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	return c.refreshShared(ctx, t.RefreshToken)
}

// refreshShared rotates stale. Callers presenting the same stale token wait
// for one round trip; a caller arriving after the rotation finished gets
// the stored successor instead of replaying a consumed token.
func (c *HTTPClient) refreshShared(ctx context.Context, stale string) (*tokens.Tokens, error) {
	v, err, _ := c.flight.Do(stale, func() (any, error) {
		cur, err := c.Session(ctx)
		if err != nil {
			return nil, err
		}
		if cur.RefreshToken != stale {
			return cur, nil
		}
		return c.refresh(ctx, cur)
	})
	if err != nil {
		return nil, err
	}
	return v.(*tokens.Tokens), nil
}

func (c *HTTPClient) refresh(ctx context.Context, cur *tokens.Tokens) (*tokens.Tokens, error) {
	var s sessionResponse
	err := c.do(ctx, http.MethodPost, "/refresh-token", map[string]string{"refreshToken": cur.RefreshToken}, "", &s)
	if hasCode(err, CodeRefreshTokenExpired, CodeInvalidRefreshToken) {
		if cerr := c.store.Clear(ctx); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if err != nil {
		return nil, err
	}

	t := c.toTokens(cur.Email, &s)
	if err := c.store.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// authorized runs call with the stored access token, refreshing once if the
// server reports it expired.
func (c *HTTPClient) authorized(ctx context.Context, call func(access string) error) error {
	t, err := c.Session(ctx)
	if err != nil {
		return err
	}

	err = call(t.AccessToken)
	if !hasCode(err, CodeTokenExpired) {
		return err
	}

	t, err = c.refreshShared(ctx, t.RefreshToken)
	if err != nil {
		return err
	}
	return call(t.AccessToken)
}

func (c *HTTPClient) Me(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	err := c.authorized(ctx, func(access string) error {
		return c.do(ctx, http.MethodGet, "/me", nil, access, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout revokes the stored refresh token and forgets the session locally,
// even when the server cannot be reached.
func (c *HTTPClient) Logout(ctx context.Context) error {
	t, err := c.store.Load(ctx)
	if err != nil || t == nil {
		return err
	}

	err = c.do(ctx, http.MethodPost, "/logout", map[string]string{"refreshToken": t.RefreshToken}, "", nil)
	return errors.Join(err, c.store.Clear(ctx))
}

// Ping checks /healthz on the API's host.
func (c *HTTPClient) Ping(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Path, u.RawQuery = "/healthz", ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
