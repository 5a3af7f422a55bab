package passwordresets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const consumeRetries = 4

type RedisRepository struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisRepository(client redis.UniversalClient, prefix string, retention time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = "ak:reset"
	}
	return &RedisRepository{redis: client, prefix: prefix, retention: retention}
}

func (r *RedisRepository) key(email string) string {
	return r.prefix + ":" + email
}

func (r *RedisRepository) Upsert(ctx context.Context, p *models.PasswordReset) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.redis.Set(ctx, r.key(p.Email), data, r.ttl(p.OTPExpiresAt)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Restore puts back a record removed by Consume whose enclosing unit of
// work did not commit. A record stored since then is left untouched.
func (r *RedisRepository) Restore(ctx context.Context, p *models.PasswordReset) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.redis.SetNX(ctx, r.key(p.Email), data, r.ttl(p.OTPExpiresAt)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) ttl(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt) + r.retention
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func (r *RedisRepository) Get(ctx context.Context, email string) (*models.PasswordReset, error) {
	data, err := r.redis.Get(ctx, r.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return decode(data)
}

func (r *RedisRepository) Consume(ctx context.Context, email, code string, now time.Time) (*models.PasswordReset, error) {
	key := r.key(email)

	for i := 0; i < consumeRetries; i++ {
		var matched *models.PasswordReset

		err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			p, err := decode(data)
			if err != nil {
				return err
			}

			expired := p.Expired(now)
			if !expired && p.OTPCode != code {
				return common.ErrOTPMismatch
			}

			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			}); err != nil {
				return err
			}
			if expired {
				return common.ErrOTPExpired
			}
			matched = p
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		switch {
		case err == nil:
			return matched, nil
		case errors.Is(err, redis.Nil):
			return nil, common.ErrorNotFound
		case errors.Is(err, common.ErrOTPExpired), errors.Is(err, common.ErrOTPMismatch):
			return nil, err
		default:
			return nil, fmt.Errorf("redis error: %w", err)
		}
	}

	// Lost every race: the record is still there, the caller may retry.
	return nil, fmt.Errorf("redis error: %w", redis.TxFailedErr)
}

func (r *RedisRepository) Delete(ctx context.Context, email string) error {
	if err := r.redis.Del(ctx, r.key(email)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func decode(data []byte) (*models.PasswordReset, error) {
	p := &models.PasswordReset{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode password reset: %w", err)
	}
	return p, nil
}
