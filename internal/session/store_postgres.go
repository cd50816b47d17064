// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/postgres"
)

// PostgresRepository implements [Repository] on the auth_sessions table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the session Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const sessionColumns = `
	session_id, user_id::text, is_first_time, step_number,
	email_verified, sms_verified, user_details_collected, biometric_collected, security_questions_answered,
	auth_method, external_subject, prefilled, status,
	ip_address, user_agent, device_id,
	created_at, expires_at, completed_at`

const flagColumns = `email_verified, sms_verified, user_details_collected, biometric_collected, security_questions_answered`

// Create inserts a new session row.
func (repository *PostgresRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO auth_sessions (
			session_id, user_id, is_first_time, step_number, auth_method, external_subject,
			status, ip_address, user_agent, device_id, created_at, expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $11)`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query,
		session.ID,
		nullableUUID(session.UserID),
		session.IsFirstTime,
		session.StepNumber,
		session.AuthMethod.String(),
		session.ExternalSubject,
		string(session.Status),
		session.Client.IPAddress,
		session.Client.UserAgent,
		session.Client.DeviceID,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	// A session id the caller cannot read back must never be handed out.
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("postgres_session_repo_create_failed: %d rows inserted", tag.RowsAffected())
	}

	return nil
}

// FindByID loads one session.
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM auth_sessions WHERE session_id = $1`

	session, err := scanSession(postgres.Conn(context, repository.pool).QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session").WithCode("SESSION_NOT_FOUND")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

// AdvanceStep raises the step only when it does not regress.
func (repository *PostgresRepository) AdvanceStep(context context.Context, id string, target int) (bool, error) {
	const query = `
		UPDATE auth_sessions
		SET step_number = $2, updated_at = NOW()
		WHERE session_id = $1 AND step_number <= $2`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, id, target)
	if err != nil {
		return false, fmt.Errorf("postgres_session_repo_advance_step_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkFlag sets one flag and raises the step with GREATEST so it never decreases.
func (repository *PostgresRepository) MarkFlag(context context.Context, id string, flag Flag, step int) (Flags, bool, error) {
	column, err := flagColumn(flag)
	if err != nil {
		return Flags{}, false, err
	}

	query := `
		UPDATE auth_sessions
		SET ` + column + ` = TRUE, step_number = GREATEST(step_number, $2), updated_at = NOW()
		WHERE session_id = $1 AND status = 'active'
		RETURNING ` + flagColumns

	var flags Flags
	err = postgres.Conn(context, repository.pool).QueryRow(context, query, id, step).Scan(
		&flags.EmailVerified,
		&flags.SMSVerified,
		&flags.UserDetailsCollected,
		&flags.BiometricCollected,
		&flags.SecurityQuestionsAnswered,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Flags{}, false, nil
		}
		return Flags{}, false, fmt.Errorf("postgres_session_repo_mark_flag_failed: %w", err)
	}

	return flags, true, nil
}

// MarkPrefilled sets the prefilled marker.
func (repository *PostgresRepository) MarkPrefilled(context context.Context, id string) error {
	const query = `UPDATE auth_sessions SET prefilled = TRUE, updated_at = NOW() WHERE session_id = $1`

	if _, err := postgres.Conn(context, repository.pool).Exec(context, query, id); err != nil {
		return fmt.Errorf("postgres_session_repo_mark_prefilled_failed: %w", err)
	}
	return nil
}

// Complete performs the active → completed transition.
func (repository *PostgresRepository) Complete(context context.Context, id string, completedAt time.Time) (bool, error) {
	const query = `
		UPDATE auth_sessions
		SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE session_id = $1 AND status = 'active'`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, id, completedAt)
	if err != nil {
		return false, fmt.Errorf("postgres_session_repo_complete_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Terminate performs the active → logged_out transition.
func (repository *PostgresRepository) Terminate(context context.Context, id string) (bool, error) {
	const query = `
		UPDATE auth_sessions
		SET status = 'logged_out', updated_at = NOW()
		WHERE session_id = $1 AND status = 'active'`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, id)
	if err != nil {
		return false, fmt.Errorf("postgres_session_repo_terminate_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// TerminateByUser closes every active session for a user.
func (repository *PostgresRepository) TerminateByUser(context context.Context, userID string) (int64, error) {
	const query = `
		UPDATE auth_sessions
		SET status = 'logged_out', updated_at = NOW()
		WHERE user_id = $1 AND status = 'active'`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_terminate_by_user_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

// # Row Mapping

func scanSession(row pgx.Row) (*Session, error) {
	var (
		session         Session
		userID          *string
		externalSubject *string
		authMethod      string
		status          string
	)

	err := row.Scan(
		&session.ID,
		&userID,
		&session.IsFirstTime,
		&session.StepNumber,
		&session.Flags.EmailVerified,
		&session.Flags.SMSVerified,
		&session.Flags.UserDetailsCollected,
		&session.Flags.BiometricCollected,
		&session.Flags.SecurityQuestionsAnswered,
		&authMethod,
		&externalSubject,
		&session.Prefilled,
		&status,
		&session.Client.IPAddress,
		&session.Client.UserAgent,
		&session.Client.DeviceID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	method, err := ParseAuthMethod(authMethod)
	if err != nil {
		return nil, err
	}

	session.AuthMethod = method
	session.Status = Status(status)
	if userID != nil {
		session.UserID = *userID
	}
	if externalSubject != nil {
		session.ExternalSubject = *externalSubject
	}

	return &session, nil
}

// flagColumn maps a flag to its column. Only these literals are ever interpolated into SQL.
func flagColumn(flag Flag) (string, error) {
	switch flag {
	case FlagEmailVerified:
		return "email_verified", nil
	case FlagSMSVerified:
		return "sms_verified", nil
	case FlagUserDetailsCollected:
		return "user_details_collected", nil
	case FlagBiometricCollected:
		return "biometric_collected", nil
	case FlagSecurityQuestionsAnswered:
		return "security_questions_answered", nil
	default:
		return "", fmt.Errorf("session: unknown flag %d", int(flag))
	}
}

func nullableUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}
