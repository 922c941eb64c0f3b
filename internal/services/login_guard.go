package services

import (
	"context"
	"errors"
	"time"

	"github.com/machines3d/authority/internal/config"
	"github.com/machines3d/authority/internal/repository"
	"github.com/machines3d/authority/internal/utils"
	"github.com/redis/go-redis/v9"
)

const loginFailurePrefix = "auth:login_failures:"

// RedisLoginGuard locks an email after MaxFailedLogins failures inside a
// fixed window that starts at the first failure.
type RedisLoginGuard struct {
	client      redis.UniversalClient
	maxFailures int64
	window      time.Duration
}

func NewRedisLoginGuard(client redis.UniversalClient, cfg *config.AuthConfig) *RedisLoginGuard {
	return &RedisLoginGuard{
		client:      client,
		maxFailures: int64(cfg.MaxFailedLogins),
		window:      time.Duration(cfg.FailedLoginWindowMinutes) * time.Minute,
	}
}

// NewRedisClient opens the client shared by the login guard.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func (g *RedisLoginGuard) Locked(ctx context.Context, email string) (bool, error) {
	if g.maxFailures <= 0 {
		return false, nil
	}
	count, err := g.client.Get(ctx, g.key(email)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return count >= g.maxFailures, nil
}

func (g *RedisLoginGuard) RecordFailure(ctx context.Context, email string) error {
	key := g.key(email)
	// INCR and EXPIRE NX run as one MULTI so a counter never lives without a TTL.
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, g.window)
		return nil
	})
	return err
}

func (g *RedisLoginGuard) Reset(ctx context.Context, email string) error {
	return g.client.Del(ctx, g.key(email)).Err()
}

// key hashes the normalized email so addresses never land in Redis.
func (g *RedisLoginGuard) key(email string) string {
	return loginFailurePrefix + utils.HashToken(repository.EmailKey(email))
}
