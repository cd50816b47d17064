// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package identity (Postgres) implements the storage layer for users and profiles.

# Schema Table Mapping
  - users: Master identity record.
  - user_details: 1:1 profile captured during enrollment.
  - user_roles: Role grants.
*/
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/database/schema"
	"github.com/taibuivan/votegate/internal/platform/dberr"
	"github.com/taibuivan/votegate/internal/platform/postgres"
)

// PostgresRepository implements [Repository] using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the identity Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// userSelect renders the user projection; nullable text columns collapse to ''.
func userSelect() string {
	u := schema.IdentityUser
	return fmt.Sprintf(`
		SELECT %s::text, COALESCE(%s, ''), COALESCE(%s, ''), COALESCE(%s, ''), COALESCE(%s, ''),
		       COALESCE(%s, ''), COALESCE(%s, ''), COALESCE(%s, ''), COALESCE(%s, ''),
		       %s, %s, %s, %s, %s
		FROM %s`,
		u.ID, u.Email, u.Phone, u.Username, u.FirstName,
		u.LastName, u.Country, u.Gender, u.ExternalSubject,
		u.IsBanned, u.IsActivated, u.IsApproved, u.CreatedAt, u.UpdatedAt,
		u.Table,
	)
}

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Phone,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Country,
		&user.Gender,
		&user.ExternalSubject,
		&user.IsBanned,
		&user.IsActivated,
		&user.IsApproved,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (repository *PostgresRepository) findUser(context context.Context, action, where string, args ...any) (*User, error) {
	query := userSelect() + " WHERE " + where + " LIMIT 1"

	user, err := scanUser(postgres.Conn(context, repository.pool).QueryRow(context, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User").WithCode("USER_NOT_FOUND")
		}
		return nil, fmt.Errorf("postgres_identity_repo_%s_failed: %w", action, err)
	}
	return user, nil
}

// # User Methods

// FindByContact matches email case-insensitively or phone exactly.
func (repository *PostgresRepository) FindByContact(context context.Context, email, phone string) (*User, error) {
	u := schema.IdentityUser
	where := fmt.Sprintf(`($1 <> '' AND LOWER(%s) = $1) OR ($2 <> '' AND %s = $2)`, u.Email, u.Phone)
	return repository.findUser(context, "find_by_contact", where, email, phone)
}

// FindByID retrieves a user by primary key.
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*User, error) {
	return repository.findUser(context, "find_by_id", schema.IdentityUser.ID+" = $1", id)
}

// FindByExternalSubject retrieves the user linked to an SSO subject.
func (repository *PostgresRepository) FindByExternalSubject(context context.Context, subject string) (*User, error) {
	return repository.findUser(context, "find_by_subject", schema.IdentityUser.ExternalSubject+" = $1", subject)
}

/*
Create persists a new user.

Description: Empty email, phone and subject are stored as NULL so the unique
indexes on those columns only constrain real values.
*/
func (repository *PostgresRepository) Create(context context.Context, user *User) error {
	u := schema.IdentityUser
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
		        NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13, $13)`,
		u.Table,
		u.ID, u.Email, u.Phone, u.Username, u.FirstName, u.LastName, u.Country, u.Gender,
		u.ExternalSubject, u.IsBanned, u.IsActivated, u.IsApproved, u.CreatedAt, u.UpdatedAt,
	)

	_, err := postgres.Conn(context, repository.pool).Exec(context, query,
		user.ID,
		user.Email,
		user.Phone,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Country,
		user.Gender,
		user.ExternalSubject,
		user.IsBanned,
		user.IsActivated,
		user.IsApproved,
		user.CreatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "User", "postgres_identity_repo_create_failed")
	}

	user.UpdatedAt = user.CreatedAt
	return nil
}

// LinkExternalSubject sets the subject only where none is recorded yet.
func (repository *PostgresRepository) LinkExternalSubject(context context.Context, userID, subject string) error {
	u := schema.IdentityUser
	query := fmt.Sprintf(`UPDATE %s SET %s = $2, %s = NOW() WHERE %s = $1 AND %s IS NULL`,
		u.Table, u.ExternalSubject, u.UpdatedAt, u.ID, u.ExternalSubject)

	if _, err := postgres.Conn(context, repository.pool).Exec(context, query, userID, subject); err != nil {
		return dberr.Wrap(err, "User", "postgres_identity_repo_link_subject_failed")
	}
	return nil
}

// MarkActivated flips is_activated.
func (repository *PostgresRepository) MarkActivated(context context.Context, userID string) error {
	u := schema.IdentityUser
	query := fmt.Sprintf(`UPDATE %s SET %s = TRUE, %s = NOW() WHERE %s = $1 AND %s = FALSE`,
		u.Table, u.IsActivated, u.UpdatedAt, u.ID, u.IsActivated)

	if _, err := postgres.Conn(context, repository.pool).Exec(context, query, userID); err != nil {
		return fmt.Errorf("postgres_identity_repo_mark_activated_failed: %w", err)
	}
	return nil
}

// # Profile Details Methods

// HasDetails reports whether a user_details row exists.
func (repository *PostgresRepository) HasDetails(context context.Context, userID string) (bool, error) {
	d := schema.IdentityUserDetails
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, d.Table, d.UserID)

	var exists bool
	if err := postgres.Conn(context, repository.pool).QueryRow(context, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres_identity_repo_has_details_failed: %w", err)
	}
	return exists, nil
}

// FindDetails retrieves the profile-details row of a user.
func (repository *PostgresRepository) FindDetails(context context.Context, userID string) (*Details, error) {
	d := schema.IdentityUserDetails
	query := fmt.Sprintf(`
		SELECT %s::text, COALESCE(%s, ''), COALESCE(%s, ''), COALESCE(%s, ''), %s,
		       COALESCE(%s, ''), COALESCE(%s, ''), COALESCE(%s, ''), %s, %s,
		       COALESCE(%s, ''), %s, %s
		FROM %s
		WHERE %s = $1`,
		d.UserID, d.SessionID, d.FirstName, d.LastName, d.Age,
		d.Gender, d.Country, d.City, d.Timezone, d.Language,
		d.RegistrationIP, d.CreatedAt, d.UpdatedAt,
		d.Table, d.UserID,
	)

	details := &Details{}
	err := postgres.Conn(context, repository.pool).QueryRow(context, query, userID).Scan(
		&details.UserID,
		&details.SessionID,
		&details.FirstName,
		&details.LastName,
		&details.Age,
		&details.Gender,
		&details.Country,
		&details.City,
		&details.Timezone,
		&details.Language,
		&details.RegistrationIP,
		&details.CreatedAt,
		&details.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Profile")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_details_failed: %w", err)
	}
	return details, nil
}

/*
UpsertDetails inserts or merges a user_details row.

Description: Timezone and language fall back to their defaults on insert.
In fill mode an existing non-empty column is never touched; in overwrite
mode only provided values replace existing ones.
*/
func (repository *PostgresRepository) UpsertDetails(context context.Context, details *Details, overwrite bool) error {
	d := schema.IdentityUserDetails

	merge := func(column string, param int) string {
		if overwrite {
			return fmt.Sprintf("%[1]s = COALESCE(NULLIF($%[2]d, ''), %[3]s.%[1]s)", column, param, d.Table)
		}
		return fmt.Sprintf("%[1]s = COALESCE(NULLIF(%[3]s.%[1]s, ''), NULLIF($%[2]d, ''))", column, param, d.Table)
	}

	ageMerge := fmt.Sprintf("%[1]s = COALESCE(%[2]s.%[1]s, $5)", d.Age, d.Table)
	if overwrite {
		ageMerge = fmt.Sprintf("%[1]s = COALESCE($5, %[2]s.%[1]s)", d.Age, d.Table)
	}

	assignments := []string{
		merge(d.FirstName, 3),
		merge(d.LastName, 4),
		ageMerge,
		merge(d.Gender, 6),
		merge(d.Country, 7),
		merge(d.City, 8),
		merge(d.Timezone, 9),
		merge(d.Language, 10),
		fmt.Sprintf("%s = COALESCE(NULLIF($2, ''), %s.%s)", d.SessionID, d.Table, d.SessionID),
		d.UpdatedAt + " = NOW()",
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''),
		        NULLIF($8, ''), COALESCE(NULLIF($9, ''), '%s'), COALESCE(NULLIF($10, ''), '%s'),
		        NULLIF($11, ''), NOW(), NOW())
		ON CONFLICT (%s) DO UPDATE SET %s`,
		d.Table,
		d.UserID, d.SessionID, d.FirstName, d.LastName, d.Age, d.Gender, d.Country,
		d.City, d.Timezone, d.Language, d.RegistrationIP, d.CreatedAt, d.UpdatedAt,
		DefaultTimezone, DefaultLanguage,
		d.UserID, strings.Join(assignments, ", "),
	)

	_, err := postgres.Conn(context, repository.pool).Exec(context, query,
		details.UserID,
		details.SessionID,
		details.FirstName,
		details.LastName,
		details.Age,
		details.Gender,
		details.Country,
		details.City,
		details.Timezone,
		details.Language,
		details.RegistrationIP,
	)
	if err != nil {
		return dberr.Wrap(err, "User", "postgres_identity_repo_upsert_details_failed")
	}
	return nil
}

// # Role Methods

// AssignRole grants role to a user with ON CONFLICT DO NOTHING semantics.
func (repository *PostgresRepository) AssignRole(context context.Context, userID, role, source string) error {
	r := schema.IdentityUserRole
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s) VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (%s, %s) DO NOTHING`,
		r.Table, r.UserID, r.RoleName, r.Source, r.IsActive, r.CreatedAt,
		r.UserID, r.RoleName,
	)

	if _, err := postgres.Conn(context, repository.pool).Exec(context, query, userID, role, source); err != nil {
		return dberr.Wrap(err, "User", "postgres_identity_repo_assign_role_failed")
	}
	return nil
}

// Roles lists active role names ordered by name.
func (repository *PostgresRepository) Roles(context context.Context, userID string) ([]string, error) {
	r := schema.IdentityUserRole
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s ORDER BY %s`,
		r.RoleName, r.Table, r.UserID, r.IsActive, r.RoleName)

	rows, err := postgres.Conn(context, repository.pool).Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_identity_repo_roles_failed: %w", err)
	}

	roles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres_identity_repo_roles_scan_failed: %w", err)
	}
	return roles, nil
}
