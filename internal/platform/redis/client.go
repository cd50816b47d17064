// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis opens the go-redis client that holds the gateway's short-lived
state: OTP issue counters, consumed SSO nonces and the security questions
offered to a session.

Everything stored here expires on its own. Whether a session may complete is
decided from PostgreSQL only.
*/
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 3 * time.Second
	ioTimeout   = 2 * time.Second
	pingTimeout = 2 * time.Second
)

// PoolSettings sizes the client pool. Zero values keep go-redis defaults.
type PoolSettings struct {
	PoolSize     int
	MinIdleConns int
}

// NewClient parses a redis:// or rediss:// URL and pings the server once.
func NewClient(context context.Context, url string, settings PoolSettings, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis_parse_url_failed: %w", err)
	}

	if settings.PoolSize > 0 {
		options.PoolSize = settings.PoolSize
	}
	if settings.MinIdleConns > 0 {
		options.MinIdleConns = settings.MinIdleConns
	}
	options.DialTimeout = dialTimeout
	options.ReadTimeout = ioTimeout
	options.WriteTimeout = ioTimeout

	client := redis.NewClient(options)
	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
		slog.Int("pool_size", options.PoolSize),
	)
	return client, nil
}

// Ping is the readiness probe for Redis.
func Ping(parent context.Context, client *redis.Client) error {
	context, cancel := context.WithTimeout(parent, pingTimeout)
	defer cancel()

	if err := client.Ping(context).Err(); err != nil {
		return fmt.Errorf("redis_ping_failed: %w", err)
	}
	return nil
}
