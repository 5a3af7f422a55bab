// Package services contains server-side business logic. SessionService
// drives the OTP-gated registration state machine, credential login,
// single-use refresh token rotation, logout and password reset.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/passwordresets"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/pendingregistrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/secrets"
)

// Session is the token pair handed to a client after login or refresh.
type Session struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	ExpiresIn        time.Duration
}

type SessionService struct {
	db          dbx.DBTX
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	issuer      *auth.Issuer
	hasher      secrets.Hasher
	notifier    notify.Notifier
	logger      logging.Logger

	otpValidityDuration time.Duration
	revokeOnReuse       bool

	now         func() time.Time
	generateOTP func() (string, error)

	dummyOnce sync.Once
	dummyHash string
}

// NewSessionService wires the service. db is the handle repositories use
// outside a transaction (nil for the memory store); tx runs atomic units.
func NewSessionService(
	db dbx.DBTX,
	tx dbx.Transactor,
	m repomanager.RepositoryManager,
	issuer *auth.Issuer,
	hasher secrets.Hasher,
	notifier notify.Notifier,
	cfg *config.Config,
	logger logging.Logger,
) *SessionService {
	return &SessionService{
		db:                  db,
		tx:                  tx,
		repomanager:         m,
		issuer:              issuer,
		hasher:              hasher,
		notifier:            notifier,
		logger:              logger.With("module", "sessions"),
		otpValidityDuration: cfg.OTPValidityDuration,
		revokeOnReuse:       cfg.RevokeOnReuse,
		now:                 time.Now,
		generateOTP:         secrets.GenerateOTP,
	}
}

// Register starts (or restarts) a sign-up. Any earlier pending code for the
// email is superseded.
func (s *SessionService) Register(ctx context.Context, name, email, password string) error {
	_, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	switch {
	case err == nil:
		return common.ErrEmailAlreadyVerified
	case !errors.Is(err, common.ErrorNotFound):
		return fmt.Errorf("register: lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("register: hash password: %w", err)
	}

	code, err := s.generateOTP()
	if err != nil {
		return fmt.Errorf("register: generate otp: %w", err)
	}

	now := s.now()
	p := &models.PendingRegistration{
		Email:        email,
		DisplayName:  name,
		PasswordHash: hash,
		OTPCode:      code,
		OTPExpiresAt: now.Add(s.otpValidityDuration),
		CreatedAt:    now,
	}
	if err := s.repomanager.PendingRegistrations(s.db).Upsert(ctx, p); err != nil {
		return fmt.Errorf("register: store pending registration: %w", err)
	}

	s.send(ctx, notify.Message{
		Kind:      notify.KindRegistration,
		To:        email,
		Name:      name,
		Code:      code,
		ExpiresIn: s.otpValidityDuration,
	})
	return nil
}

// VerifyOTP consumes the pending registration and creates the user in one
// transaction. A record consumed from Redis is put back if the transaction
// does not commit.
func (s *SessionService) VerifyOTP(ctx context.Context, email, code string) (*models.User, error) {
	var (
		user    *models.User
		expired bool
	)

	var consumed undo
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		consumed.run(ctx)
		now := s.now()

		pending := s.repomanager.PendingRegistrations(tx)
		p, err := pending.Consume(ctx, email, code, now)
		if errors.Is(err, common.ErrOTPExpired) {
			// commit the removal of the stale record
			expired = true
			return nil
		}
		if err != nil {
			return err
		}
		consumed.set(s.restorePending(pending, p))

		user, err = s.repomanager.Users(tx).Create(ctx, &models.User{
			DisplayName:  p.DisplayName,
			Email:        p.Email,
			PasswordHash: p.PasswordHash,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return err
	})
	if err != nil {
		consumed.run(ctx)
	}

	switch {
	case expired:
		return nil, common.ErrOTPExpired
	case err == nil:
		s.logger.Info(ctx, "user verified", "user_id", user.ID)
		return user, nil
	case errors.Is(err, common.ErrorNotFound):
		return nil, common.ErrNoPendingRegistration
	case errors.Is(err, common.ErrOTPMismatch):
		return nil, common.ErrOTPMismatch
	case errors.Is(err, common.ErrorAlreadyExists):
		return nil, common.ErrEmailAlreadyVerified
	default:
		return nil, fmt.Errorf("verify otp: %w", err)
	}
}

// Login checks credentials and opens a new session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *SessionService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.burnHash(password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("login: verify password: %w", err)
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	sess, err := s.openSession(ctx, s.db, user)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return sess, nil
}

// Refresh rotates refreshToken: the presented token is removed and a new
// pair is issued in the same transaction. Of two concurrent calls with the
// same token exactly one succeeds; the other gets ErrRefreshTokenNotFound.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	id, err := s.issuer.Verify(refreshToken, common.AudienceRefresh)
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken); err != nil {
			s.logger.Warn(ctx, "failed to delete expired refresh token", "error", err)
		}
		return nil, common.ErrRefreshTokenExpired
	case err != nil:
		return nil, common.ErrInvalidRefreshToken
	}

	var (
		sess    *Session
		expired bool
	)

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		rt, err := s.repomanager.RefreshTokens(tx).Take(ctx, refreshToken)
		if err != nil {
			return err
		}
		if rt.UserID != id.UserID {
			return common.ErrInvalidRefreshToken
		}
		if rt.Expired(s.now()) {
			expired = true
			return nil
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, rt.UserID)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		sess, err = s.openSession(ctx, tx, user)
		return err
	})

	switch {
	case expired:
		return nil, common.ErrRefreshTokenExpired
	case err == nil:
		return sess, nil
	case errors.Is(err, common.ErrorNotFound):
		s.reuseDetected(ctx, id.UserID)
		return nil, common.ErrRefreshTokenNotFound
	case errors.Is(err, common.ErrInvalidRefreshToken), errors.Is(err, common.ErrUserNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("refresh: %w", err)
	}
}

// reuseDetected handles a correctly signed refresh token that has no live
// record: it was already rotated, logged out, or replayed by someone else.
func (s *SessionService) reuseDetected(ctx context.Context, userID string) {
	s.logger.Warn(ctx, "refresh token reuse detected", "user_id", userID)
	if !s.revokeOnReuse {
		return
	}

	n, err := s.repomanager.RefreshTokens(s.db).DeleteByUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "failed to revoke sessions", "user_id", userID, "error", err)
		return
	}
	s.logger.Warn(ctx, "revoked all sessions", "user_id", userID, "count", n)
}

// Logout removes the session. Unknown tokens are not an error.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ForgotPassword issues a reset code for a registered email. For an unknown
// email it does nothing and still reports success.
func (s *SessionService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("forgot password: lookup user: %w", err)
	}

	code, err := s.generateOTP()
	if err != nil {
		return fmt.Errorf("forgot password: generate otp: %w", err)
	}

	now := s.now()
	req := &models.PasswordReset{
		Email:        email,
		OTPCode:      code,
		OTPExpiresAt: now.Add(s.otpValidityDuration),
		CreatedAt:    now,
	}
	if err := s.repomanager.PasswordResets(s.db).Upsert(ctx, req); err != nil {
		return fmt.Errorf("forgot password: store request: %w", err)
	}

	s.send(ctx, notify.Message{
		Kind:      notify.KindPasswordReset,
		To:        email,
		Name:      user.DisplayName,
		Code:      code,
		ExpiresIn: s.otpValidityDuration,
	})
	return nil
}

// ResetPassword replaces the password of email. The request is checked
// before the new password is compared with the current one, and is only
// consumed once the new password is accepted.
func (s *SessionService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	now := s.now()
	resets := s.repomanager.PasswordResets(s.db)

	req, err := resets.Get(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrNoResetRequest
	}
	if err != nil {
		return fmt.Errorf("reset password: lookup request: %w", err)
	}
	if req.Expired(now) {
		if err := resets.Delete(ctx, email); err != nil {
			s.logger.Warn(ctx, "failed to delete expired reset request", "error", err)
		}
		return common.ErrOTPExpired
	}
	if req.OTPCode != code {
		return common.ErrOTPMismatch
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("reset password: lookup user: %w", err)
	}

	same, err := s.hasher.Verify(newPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("reset password: verify password: %w", err)
	}
	if same {
		return common.ErrSamePassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("reset password: hash password: %w", err)
	}

	var (
		expired  bool
		consumed undo
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		consumed.run(ctx)

		resets := s.repomanager.PasswordResets(tx)
		r, err := resets.Consume(ctx, email, code, now)
		if errors.Is(err, common.ErrOTPExpired) {
			expired = true
			return nil
		}
		if err != nil {
			return err
		}
		consumed.set(s.restoreReset(resets, r))

		err = s.repomanager.Users(tx).UpdatePassword(ctx, user.ID, hash, now)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUserNotFound
		}
		return err
	})
	if err != nil {
		consumed.run(ctx)
	}

	switch {
	case expired:
		return common.ErrOTPExpired
	case err == nil:
		s.logger.Info(ctx, "password reset", "user_id", user.ID)
		return nil
	case errors.Is(err, common.ErrorNotFound):
		// consumed by a concurrent reset
		return common.ErrNoResetRequest
	case errors.Is(err, common.ErrOTPMismatch), errors.Is(err, common.ErrUserNotFound):
		return err
	default:
		return fmt.Errorf("reset password: %w", err)
	}
}

// CurrentUser backs GET /me.
func (s *SessionService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return user, nil
}

// --- helpers below ---

// undo holds the compensation for a challenge consumed by a store that does
// not take part in the SQL transaction. It runs whenever the unit does not
// commit, including before a retried attempt.
type undo struct {
	fn func(ctx context.Context)
}

func (u *undo) set(fn func(ctx context.Context)) { u.fn = fn }

func (u *undo) run(ctx context.Context) {
	if u.fn == nil {
		return
	}
	u.fn(context.WithoutCancel(ctx))
	u.fn = nil
}

func (s *SessionService) restorePending(repo pendingregistrations.Repository, p *models.PendingRegistration) func(context.Context) {
	r, ok := repo.(pendingregistrations.Restorer)
	if !ok {
		return nil
	}
	return func(ctx context.Context) {
		if err := r.Restore(ctx, p); err != nil {
			s.logger.Error(ctx, "failed to restore pending registration", "email", p.Email, "error", err)
		}
	}
}

func (s *SessionService) restoreReset(repo passwordresets.Repository, p *models.PasswordReset) func(context.Context) {
	r, ok := repo.(passwordresets.Restorer)
	if !ok {
		return nil
	}
	return func(ctx context.Context) {
		if err := r.Restore(ctx, p); err != nil {
			s.logger.Error(ctx, "failed to restore reset request", "email", p.Email, "error", err)
		}
	}
}

func (s *SessionService) openSession(ctx context.Context, db dbx.DBTX, user *models.User) (*Session, error) {
	access, accessExp, err := s.issuer.IssueAccessToken(user.ID, user.Email, user.DisplayName)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	rt := &models.RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: refreshExp,
		CreatedAt: s.now(),
	}
	if err := s.repomanager.RefreshTokens(db).Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Session{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		ExpiresIn:        s.issuer.AccessTTL(),
	}, nil
}

func (s *SessionService) send(ctx context.Context, m notify.Message) {
	if err := s.notifier.Notify(ctx, m); err != nil {
		s.logger.Warn(ctx, "notification not queued", "kind", string(m.Kind), "error", err)
	}
}

// burnHash spends about as long as a real password check, so unknown
// emails do not answer faster than wrong passwords.
func (s *SessionService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		plain, err := common.MakeRandHexString(16)
		if err != nil {
			return
		}
		if h, err := s.hasher.Hash(plain); err == nil {
			s.dummyHash = h
		}
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}
