// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/dberr"
	"github.com/taibuivan/votegate/internal/platform/postgres"
	"github.com/taibuivan/votegate/internal/platform/sec"
)

// PostgresRepository implements [Repository] on the auth_tokens table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the credential Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a credential record.
func (repository *PostgresRepository) Create(context context.Context, record *Record) error {
	const query = `
		INSERT INTO auth_tokens (
			id, user_id, session_id, access_token_hash, refresh_token_hash,
			access_expires_at, refresh_expires_at, is_revoked, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`

	_, err := postgres.Conn(context, repository.pool).Exec(context, query,
		record.ID,
		record.UserID,
		record.SessionID,
		record.AccessTokenHash,
		record.RefreshTokenHash,
		record.AccessExpiresAt,
		record.RefreshExpiresAt,
		record.CreatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "Credential", "postgres_credential_repo_create_failed")
	}

	return nil
}

// FindByTokenHash looks a record up by the hash column matching kind.
func (repository *PostgresRepository) FindByTokenHash(context context.Context, kind sec.TokenKind, hash string) (*Record, error) {
	var column string
	switch kind {
	case sec.KindAccess:
		column = "access_token_hash"
	case sec.KindRefresh:
		column = "refresh_token_hash"
	default:
		return nil, fmt.Errorf("postgres_credential_repo_find_failed: unknown kind %q", kind)
	}

	query := `
		SELECT id, user_id::text, session_id, access_token_hash, refresh_token_hash,
		       access_expires_at, refresh_expires_at, is_revoked, revoked_at, created_at
		FROM auth_tokens
		WHERE ` + column + ` = $1`

	record := &Record{}
	err := postgres.Conn(context, repository.pool).QueryRow(context, query, hash).Scan(
		&record.ID,
		&record.UserID,
		&record.SessionID,
		&record.AccessTokenHash,
		&record.RefreshTokenHash,
		&record.AccessExpiresAt,
		&record.RefreshExpiresAt,
		&record.IsRevoked,
		&record.RevokedAt,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Credential")
		}
		return nil, fmt.Errorf("postgres_credential_repo_find_failed: %w", err)
	}

	return record, nil
}

// RevokeByID revokes one record.
func (repository *PostgresRepository) RevokeByID(context context.Context, id string, at time.Time) (bool, error) {
	const query = `
		UPDATE auth_tokens SET is_revoked = TRUE, revoked_at = $2
		WHERE id = $1 AND is_revoked = FALSE`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, id, at)
	if err != nil {
		return false, fmt.Errorf("postgres_credential_repo_revoke_failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeBySession revokes every live record of a session.
func (repository *PostgresRepository) RevokeBySession(context context.Context, sessionID string, at time.Time) (int64, error) {
	const query = `
		UPDATE auth_tokens SET is_revoked = TRUE, revoked_at = $2
		WHERE session_id = $1 AND is_revoked = FALSE`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, sessionID, at)
	if err != nil {
		return 0, fmt.Errorf("postgres_credential_repo_revoke_session_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RevokeByUser revokes every live record of a user.
func (repository *PostgresRepository) RevokeByUser(context context.Context, userID string, at time.Time) (int64, error) {
	const query = `
		UPDATE auth_tokens SET is_revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND is_revoked = FALSE`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("postgres_credential_repo_revoke_user_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes records that can no longer authorize anything.
func (repository *PostgresRepository) DeleteExpired(context context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM auth_tokens WHERE refresh_expires_at < $1`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres_credential_repo_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
