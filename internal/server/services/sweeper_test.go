package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	store := memory.NewManager()
	now := time.Now()

	require.NoError(t, store.RefreshTokens(nil).Create(ctx, &models.RefreshToken{UserID: "u1", Token: "old", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.RefreshTokens(nil).Create(ctx, &models.RefreshToken{UserID: "u1", Token: "live", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.PendingRegistrations(nil).Upsert(ctx, &models.PendingRegistration{Email: "a@x.com", OTPExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.PasswordResets(nil).Upsert(ctx, &models.PasswordReset{Email: "b@x.com", OTPExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.PasswordResets(nil).Upsert(ctx, &models.PasswordReset{Email: "c@x.com", OTPExpiresAt: now.Add(time.Minute)}))

	s := NewSweeper(nil, store, time.Minute, logging.Nop{})
	s.now = func() time.Time { return now }

	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{RefreshTokens: 1, PendingRegistrations: 1, PasswordResets: 1}, res)

	_, err = store.RefreshTokens(nil).Find(ctx, "live")
	assert.NoError(t, err)
	_, err = store.PasswordResets(nil).Get(ctx, "c@x.com")
	assert.NoError(t, err)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	store := memory.NewManager()
	s := NewSweeper(nil, store, 5*time.Millisecond, logging.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
