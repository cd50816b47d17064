// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package postgres opens the pgx pool and carries transactions through the
// context. Every repository of the gateway (sessions, one-time codes,
// credential records, enrollment data) reads and writes through [Conn].
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/votegate/internal/platform/constants"
)

const (
	connectTimeout    = 5 * time.Second
	pingTimeout       = 2 * time.Second
	maxConnLifetime   = time.Hour
	maxConnIdleTime   = 10 * time.Minute
	healthCheckPeriod = time.Minute
)

// PoolSettings sizes the pool. Zero values keep pgx's defaults.
type PoolSettings struct {
	MaxConns int32
	MinConns int32
}

// NewPool connects, applies settings and pings once before returning.
//
// Each new connection gets a statement_timeout equal to the HTTP request
// deadline, so a stuck query cannot outlive the request that issued it.
func NewPool(context context.Context, dsn string, settings PoolSettings, logger *slog.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres_parse_dsn_failed: %w", err)
	}

	if settings.MaxConns > 0 {
		config.MaxConns = settings.MaxConns
	}
	if settings.MinConns > 0 {
		config.MinConns = settings.MinConns
	}
	config.MaxConnLifetime = maxConnLifetime
	config.MaxConnIdleTime = maxConnIdleTime
	config.HealthCheckPeriod = healthCheckPeriod
	config.ConnConfig.ConnectTimeout = connectTimeout
	config.AfterConnect = applyStatementTimeout

	pool, err := pgxpool.NewWithConfig(context, config)
	if err != nil {
		return nil, fmt.Errorf("postgres_open_failed: %w", err)
	}

	if err := Ping(context, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres_connected",
		slog.String("host", config.ConnConfig.Host),
		slog.String("database", config.ConnConfig.Database),
		slog.Int("max_conns", int(config.MaxConns)),
	)
	return pool, nil
}

func applyStatementTimeout(context context.Context, connection *pgx.Conn) error {
	milliseconds := constants.GlobalRequestTimeout.Milliseconds()
	_, err := connection.Exec(context, fmt.Sprintf("SET statement_timeout = %d", milliseconds))
	return err
}

// Ping is the readiness probe for the database.
func Ping(parent context.Context, pool *pgxpool.Pool) error {
	context, cancel := context.WithTimeout(parent, pingTimeout)
	defer cancel()

	if err := pool.Ping(context); err != nil {
		return fmt.Errorf("postgres_ping_failed: %w", err)
	}
	return nil
}
