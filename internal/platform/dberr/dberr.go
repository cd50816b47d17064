// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/votegate/internal/platform/apperr"
)

// Wrap inspects a database error and classifies it into an [apperr.AppError].
//
// # Mapping
//   - pgx.ErrNoRows                 → NotFound(resource)
//   - unique_violation (23505)      → Conflict
//   - foreign_key_violation (23503) → NotFound(resource)
//   - anything else                 → the raw error wrapped with action, surfaced later as Internal
//
// The action string follows the "<layer>_<operation>_failed" convention.
func Wrap(err error, resource, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource)
	}

	// 2. Constraint violations carry a SQLSTATE we can classify
	var pgError *pgconn.PgError
	if errors.As(err, &pgError) {
		switch pgError.Code {
		case pgerrcode.UniqueViolation:
			return apperr.Conflict(resource + " already exists").WithCause(err)
		case pgerrcode.ForeignKeyViolation:
			return apperr.NotFound(resource).WithCause(err)
		}
	}

	// 3. Unknown query errors keep their cause and become Internal at the boundary
	return fmt.Errorf("%s: %w", action, err)
}
