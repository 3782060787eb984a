package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"qc-standards/internal/config"
	"qc-standards/internal/ratelimit"
)

// newLimiter shares login counters through redis when REDIS_ADDR is set and
// falls back to process memory otherwise.
func newLimiter(cfg *config.Config, log zerolog.Logger) ratelimit.Limiter {
	memory := ratelimit.NewMemory(ratelimit.MemoryConfig{})
	if cfg.RedisAddr == "" {
		return memory
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, using in-memory rate limiter")
		_ = client.Close()
		return memory
	}
	limiter, err := ratelimit.NewRedis(client, "qc:ratelimit:")
	if err != nil {
		log.Warn().Err(err).Msg("redis rate limiter unavailable, using in-memory rate limiter")
		return memory
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("login rate limiter backed by redis")
	return limiter
}
