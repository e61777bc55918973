package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection settings. Zero timeouts and pool size
// fall back to the defaults below.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	defaultRedisPoolSize     = 20
	defaultRedisDialTimeout  = 5 * time.Second
	defaultRedisReadTimeout  = 2 * time.Second
	defaultRedisWriteTimeout = 2 * time.Second
)

func (c RedisConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultRedisPoolSize
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultRedisDialTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultRedisReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultRedisWriteTimeout
	}
	return opts
}

// NewRedisClient opens a client for the snapshot store and pings it; the
// client is closed again when the ping fails.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(cfg.options())

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
