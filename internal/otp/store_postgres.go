// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/database/schema"
	"github.com/taibuivan/votegate/internal/platform/postgres"
)

// PostgresRepository implements [Repository] on the otp_codes table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the OTP Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new code row.
func (repository *PostgresRepository) Create(context context.Context, code *Code) error {
	c := schema.AuthOTPCode
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, NULLIF($8, ''), $9, FALSE, 0, $10)`,
		c.Table,
		c.ID, c.SessionID, c.UserID, c.Channel, c.CodeHash, c.Destination, c.Provider, c.ProviderRef,
		c.ExpiresAt, c.IsUsed, c.AttemptCount, c.CreatedAt,
	)

	_, err := postgres.Conn(context, repository.pool).Exec(context, query,
		code.ID,
		code.SessionID,
		code.UserID,
		string(code.Channel),
		code.CodeHash,
		code.Destination,
		string(code.Provider),
		code.ProviderRef,
		code.ExpiresAt,
		code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_otp_repo_create_failed: %w", err)
	}

	return nil
}

// LatestUnused returns the newest unused code for (session, channel).
func (repository *PostgresRepository) LatestUnused(context context.Context, sessionID string, channel Channel) (*Code, error) {
	c := schema.AuthOTPCode
	query := fmt.Sprintf(`
		SELECT %s, %s, COALESCE(%s::text, ''), %s, %s, %s, %s, COALESCE(%s, ''), %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = $1 AND %s = $2 AND %s = FALSE
		ORDER BY %s DESC
		LIMIT 1`,
		c.ID, c.SessionID, c.UserID, c.Channel, c.CodeHash, c.Destination, c.Provider, c.ProviderRef,
		c.ExpiresAt, c.IsUsed, c.AttemptCount, c.VerifiedAt, c.CreatedAt,
		c.Table,
		c.SessionID, c.Channel, c.IsUsed,
		c.CreatedAt,
	)

	code := &Code{}
	var channelValue, providerValue string
	err := postgres.Conn(context, repository.pool).QueryRow(context, query, sessionID, string(channel)).Scan(
		&code.ID,
		&code.SessionID,
		&code.UserID,
		&channelValue,
		&code.CodeHash,
		&code.Destination,
		&providerValue,
		&code.ProviderRef,
		&code.ExpiresAt,
		&code.IsUsed,
		&code.AttemptCount,
		&code.VerifiedAt,
		&code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Verification code").WithCode(CodeNotFound)
		}
		return nil, fmt.Errorf("postgres_otp_repo_latest_failed: %w", err)
	}

	code.Channel = Channel(channelValue)
	code.Provider = Provider(providerValue)
	return code, nil
}

// IncrementAttempts is a single conditional update so concurrent failures cannot exceed max.
func (repository *PostgresRepository) IncrementAttempts(context context.Context, id string, max int) (bool, error) {
	c := schema.AuthOTPCode
	query := fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE %s = $1 AND %s < $2`,
		c.Table, c.AttemptCount, c.AttemptCount, c.ID, c.AttemptCount,
	)

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, id, max)
	if err != nil {
		return false, fmt.Errorf("postgres_otp_repo_increment_attempts_failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkUsed flips is_used once while attempts remain; a concurrent second match
// or a cap reached by concurrent failures affects zero rows.
func (repository *PostgresRepository) MarkUsed(context context.Context, id string, at time.Time, max int) (Consumption, error) {
	c := schema.AuthOTPCode
	query := fmt.Sprintf(`UPDATE %s SET %s = TRUE, %s = $2 WHERE %s = $1 AND %s = FALSE AND %s < $3`,
		c.Table, c.IsUsed, c.VerifiedAt, c.ID, c.IsUsed, c.AttemptCount,
	)

	conn := postgres.Conn(context, repository.pool)
	tag, err := conn.Exec(context, query, id, at, max)
	if err != nil {
		return AlreadyUsed, fmt.Errorf("postgres_otp_repo_mark_used_failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return Consumed, nil
	}

	// Nothing written: tell a used code from an exhausted one.
	var isUsed bool
	lookup := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, c.IsUsed, c.Table, c.ID)
	if err := conn.QueryRow(context, lookup, id).Scan(&isUsed); err != nil {
		return AlreadyUsed, fmt.Errorf("postgres_otp_repo_mark_used_lookup_failed: %w", err)
	}
	if isUsed {
		return AlreadyUsed, nil
	}
	return AttemptsExhausted, nil
}
