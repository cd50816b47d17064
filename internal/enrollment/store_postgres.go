// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package enrollment (Postgres) implements the storage layer for enrollment steps.

# Schema Table Mapping
  - user_biometrics: Salted template hashes, one primary per user.
  - biometric_backup_codes: SHA-256 hashes of single-use recovery codes.
  - user_devices: Devices seen during enrollment, unique per (user, device id).
  - security_question_templates: Seeded question catalogue.
  - user_security_answers: bcrypt hashes of normalized answers.
*/
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/postgres"
	"github.com/taibuivan/votegate/pkg/uuid"
)

// PostgresRepository implements [Repository] using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the enrollment Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// # Biometrics

// ReplacePrimaryBiometric runs both statements on the connection carried by the context.
func (repository *PostgresRepository) ReplacePrimaryBiometric(context context.Context, biometric *Biometric) error {
	const demote = `
		UPDATE user_biometrics SET is_primary = FALSE, updated_at = $2
		WHERE user_id = $1 AND is_primary = TRUE`

	const insert = `
		INSERT INTO user_biometrics (
			id, user_id, session_id, biometric_type, template_hash, template_salt,
			argon_time, argon_memory_kib, argon_parallelism, argon_key_len,
			quality_score, is_primary, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, $12, $12)`

	conn := postgres.Conn(context, repository.pool)

	if _, err := conn.Exec(context, demote, biometric.UserID, biometric.CreatedAt); err != nil {
		return fmt.Errorf("postgres_enrollment_repo_demote_biometric_failed: %w", err)
	}

	_, err := conn.Exec(context, insert,
		biometric.ID,
		biometric.UserID,
		biometric.SessionID,
		string(biometric.Type),
		biometric.TemplateHash,
		biometric.Salt,
		int64(biometric.Params.Time),
		int64(biometric.Params.MemoryKiB),
		int16(biometric.Params.Parallelism),
		int64(biometric.Params.KeyLen),
		biometric.QualityScore,
		biometric.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_enrollment_repo_insert_biometric_failed: %w", err)
	}

	return nil
}

// PrimaryBiometric loads the newest primary biometric of the user.
func (repository *PostgresRepository) PrimaryBiometric(context context.Context, userID string, kind BiometricType) (*Biometric, error) {
	const query = `
		SELECT id, user_id::text, session_id, biometric_type, template_hash, template_salt,
		       argon_time, argon_memory_kib, argon_parallelism, argon_key_len,
		       quality_score, is_primary, is_verified, verification_count, failed_attempts, created_at
		FROM user_biometrics
		WHERE user_id = $1 AND is_primary = TRUE AND ($2 = '' OR biometric_type = $2)
		ORDER BY created_at DESC
		LIMIT 1`

	biometric := &Biometric{}
	var kindValue string
	var argonTime, memory, keyLen int64
	var parallelism int16

	err := postgres.Conn(context, repository.pool).QueryRow(context, query, userID, string(kind)).Scan(
		&biometric.ID,
		&biometric.UserID,
		&biometric.SessionID,
		&kindValue,
		&biometric.TemplateHash,
		&biometric.Salt,
		&argonTime,
		&memory,
		&parallelism,
		&keyLen,
		&biometric.QualityScore,
		&biometric.IsPrimary,
		&biometric.IsVerified,
		&biometric.VerificationCount,
		&biometric.FailedAttempts,
		&biometric.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Biometric").WithCode("BIOMETRIC_NOT_FOUND")
		}
		return nil, fmt.Errorf("postgres_enrollment_repo_find_biometric_failed: %w", err)
	}

	biometric.Type = BiometricType(kindValue)
	biometric.Params.Time = uint32(argonTime)
	biometric.Params.MemoryKiB = uint32(memory)
	biometric.Params.Parallelism = uint8(parallelism)
	biometric.Params.KeyLen = uint32(keyLen)
	return biometric, nil
}

// RecordBiometricCheck bumps exactly one counter.
func (repository *PostgresRepository) RecordBiometricCheck(context context.Context, id string, verified bool, at time.Time) error {
	query := `UPDATE user_biometrics SET failed_attempts = failed_attempts + 1, updated_at = $2 WHERE id = $1`
	if verified {
		query = `
			UPDATE user_biometrics
			SET is_verified = TRUE, verification_count = verification_count + 1, updated_at = $2
			WHERE id = $1`
	}

	if _, err := postgres.Conn(context, repository.pool).Exec(context, query, id, at); err != nil {
		return fmt.Errorf("postgres_enrollment_repo_biometric_check_failed: %w", err)
	}
	return nil
}

// # Devices

// UpsertDevice keys devices by (user_id, device_id).
func (repository *PostgresRepository) UpsertDevice(context context.Context, device *Device) error {
	const query = `
		INSERT INTO user_devices (
			id, user_id, session_id, device_id, device_type, device_name,
			os_name, browser_name, ip_address, user_agent, last_used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $11)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			last_used  = EXCLUDED.last_used`

	_, err := postgres.Conn(context, repository.pool).Exec(context, query,
		uuid.New(),
		device.UserID,
		device.SessionID,
		device.DeviceID,
		device.DeviceType,
		device.DeviceName,
		device.OS,
		device.Browser,
		device.IPAddress,
		device.UserAgent,
		device.LastUsed,
	)
	if err != nil {
		return fmt.Errorf("postgres_enrollment_repo_upsert_device_failed: %w", err)
	}
	return nil
}

// # Backup Codes

// ReplaceBackupCodes keeps used codes as an audit trail.
func (repository *PostgresRepository) ReplaceBackupCodes(context context.Context, userID string, hashes []string, at time.Time) error {
	conn := postgres.Conn(context, repository.pool)

	const purge = `DELETE FROM biometric_backup_codes WHERE user_id = $1 AND is_used = FALSE`
	if _, err := conn.Exec(context, purge, userID); err != nil {
		return fmt.Errorf("postgres_enrollment_repo_purge_backup_codes_failed: %w", err)
	}

	const insert = `
		INSERT INTO biometric_backup_codes (id, user_id, code_hash, is_used, created_at)
		VALUES ($1, $2, $3, FALSE, $4)`

	for _, hash := range hashes {
		if _, err := conn.Exec(context, insert, uuid.New(), userID, hash, at); err != nil {
			return fmt.Errorf("postgres_enrollment_repo_insert_backup_code_failed: %w", err)
		}
	}
	return nil
}

// RedeemBackupCode is a conditional update so a code is consumed at most once.
func (repository *PostgresRepository) RedeemBackupCode(context context.Context, userID, hash string, at time.Time) (bool, error) {
	const query = `
		UPDATE biometric_backup_codes SET is_used = TRUE, used_at = $3
		WHERE user_id = $1 AND code_hash = $2 AND is_used = FALSE`

	tag, err := postgres.Conn(context, repository.pool).Exec(context, query, userID, hash, at)
	if err != nil {
		return false, fmt.Errorf("postgres_enrollment_repo_redeem_backup_code_failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemainingBackupCodes counts unused codes.
func (repository *PostgresRepository) RemainingBackupCodes(context context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM biometric_backup_codes WHERE user_id = $1 AND is_used = FALSE`

	var count int
	if err := postgres.Conn(context, repository.pool).QueryRow(context, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres_enrollment_repo_count_backup_codes_failed: %w", err)
	}
	return count, nil
}

// # Security Questions

// RandomQuestions samples the active catalogue.
func (repository *PostgresRepository) RandomQuestions(context context.Context, limit int) ([]Question, error) {
	const query = `
		SELECT id, question_text, category
		FROM security_question_templates
		WHERE is_active = TRUE
		ORDER BY RANDOM()
		LIMIT $1`

	rows, err := postgres.Conn(context, repository.pool).Query(context, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres_enrollment_repo_questions_failed: %w", err)
	}

	questions, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Question])
	if err != nil {
		return nil, fmt.Errorf("postgres_enrollment_repo_questions_scan_failed: %w", err)
	}
	return questions, nil
}

// ActiveQuestionIDs filters ids down to active catalogue entries.
func (repository *PostgresRepository) ActiveQuestionIDs(context context.Context, ids []int) ([]int, error) {
	const query = `SELECT id FROM security_question_templates WHERE is_active = TRUE AND id = ANY($1)`

	rows, err := postgres.Conn(context, repository.pool).Query(context, query, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres_enrollment_repo_active_questions_failed: %w", err)
	}

	active, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("postgres_enrollment_repo_active_questions_scan_failed: %w", err)
	}
	return active, nil
}

// ReplaceAnswers deletes then inserts so re-enrollment leaves one answer per question.
func (repository *PostgresRepository) ReplaceAnswers(context context.Context, userID, sessionID string, answers []StoredAnswer, at time.Time) error {
	conn := postgres.Conn(context, repository.pool)

	if _, err := conn.Exec(context, `DELETE FROM user_security_answers WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("postgres_enrollment_repo_purge_answers_failed: %w", err)
	}

	const insert = `
		INSERT INTO user_security_answers (id, user_id, session_id, question_id, answer_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, answer := range answers {
		if _, err := conn.Exec(context, insert, uuid.New(), userID, sessionID, answer.QuestionID, answer.AnswerHash, at); err != nil {
			return fmt.Errorf("postgres_enrollment_repo_insert_answer_failed: %w", err)
		}
	}
	return nil
}

// Answers returns the stored answer hashes of a user.
func (repository *PostgresRepository) Answers(context context.Context, userID string) ([]StoredAnswer, error) {
	const query = `SELECT question_id, answer_hash FROM user_security_answers WHERE user_id = $1`

	rows, err := postgres.Conn(context, repository.pool).Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_enrollment_repo_answers_failed: %w", err)
	}

	answers, err := pgx.CollectRows(rows, pgx.RowToStructByPos[StoredAnswer])
	if err != nil {
		return nil, fmt.Errorf("postgres_enrollment_repo_answers_scan_failed: %w", err)
	}
	return answers, nil
}
