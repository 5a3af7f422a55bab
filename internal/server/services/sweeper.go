package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

type SweepResult struct {
	RefreshTokens        int64
	PendingRegistrations int64
	PasswordResets       int64
}

// Sweeper purges expired refresh tokens and OTP challenges. Expired records
// are also removed lazily when presented; the sweep bounds how long
// abandoned ones linger.
type Sweeper struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	interval    time.Duration
	logger      logging.Logger
	now         func() time.Time
}

func NewSweeper(db dbx.DBTX, m repomanager.RepositoryManager, interval time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{
		db:          db,
		repomanager: m,
		interval:    interval,
		logger:      logger.With("module", "sweeper"),
		now:         time.Now,
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var (
		res SweepResult
		err error
	)
	now := s.now()

	if res.RefreshTokens, err = s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, now); err != nil {
		return res, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	if res.PendingRegistrations, err = s.repomanager.PendingRegistrations(s.db).DeleteExpired(ctx, now); err != nil {
		return res, fmt.Errorf("sweep pending registrations: %w", err)
	}
	if res.PasswordResets, err = s.repomanager.PasswordResets(s.db).DeleteExpired(ctx, now); err != nil {
		return res, fmt.Errorf("sweep password resets: %w", err)
	}
	return res, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error(ctx, "sweep failed", "error", err)
				continue
			}
			if res.RefreshTokens+res.PendingRegistrations+res.PasswordResets > 0 {
				s.logger.Info(ctx, "expired records removed",
					"refresh_tokens", res.RefreshTokens,
					"pending_registrations", res.PendingRegistrations,
					"password_resets", res.PasswordResets)
			}
		}
	}
}
