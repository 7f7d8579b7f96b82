package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	passwordAttemptLimit  = 10
	passwordAttemptWindow = 5 * time.Minute
)

// PasswordGuard hashes and verifies optional room passwords. Verification
// is rate-limited per caller identity (typically the client IP) within a
// rolling window.
type PasswordGuard struct {
	limiter AttemptLimiter
	log     zerolog.Logger
}

func NewPasswordGuard(limiter AttemptLimiter, log zerolog.Logger) *PasswordGuard {
	return &PasswordGuard{
		limiter: limiter,
		log:     log.With().Str("component", "password").Logger(),
	}
}

// Hash returns a salted hash of password. Only the hash is ever stored.
func (g *PasswordGuard) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing room password: %w", err)
	}
	return string(hash), nil
}

// Verify checks candidate against the stored hash. An empty hash means the
// room is unprotected and every candidate passes.
func (g *PasswordGuard) Verify(ctx context.Context, identity, hash, candidate string) error {
	if hash == "" {
		return nil
	}
	if candidate == "" {
		return ErrPasswordRequired
	}

	allowed, err := g.limiter.Allow(ctx, identity)
	if err != nil {
		return transient("password attempt limiter", err)
	}
	if !allowed {
		g.log.Warn().Str("identity", identity).Msg("password attempts rate limited")
		return ErrRateLimited
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

// redisAttemptLimiter counts attempts per identity in redis with a window
// TTL, so the limit survives process restarts and is shared across
// replicas.
type redisAttemptLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisAttemptLimiter(rdb *redis.Client) AttemptLimiter {
	return &redisAttemptLimiter{
		rdb:    rdb,
		limit:  passwordAttemptLimit,
		window: passwordAttemptWindow,
	}
}

func (l *redisAttemptLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	key := "pwattempt:" + identity
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(l.limit), nil
}
