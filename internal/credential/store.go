// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package credential

import (
	"context"
	"time"

	"github.com/taibuivan/votegate/internal/platform/sec"
)

// # Credential Data Access

// Repository defines the data access contract for credential records.
type Repository interface {

	/*
		Create persists the record of a newly issued pair.

		Parameters:
		  - context: context.Context
		  - record: *Record (token hashes only, never raw tokens)

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, record *Record) error

	/*
		FindByTokenHash returns the record holding the given access or refresh hash.

		Returns:
		  - *Record: Hydrated record (revoked records are returned, not hidden)
		  - error: apperr.NotFound or database errors
	*/
	FindByTokenHash(context context.Context, kind sec.TokenKind, hash string) (*Record, error)

	/*
		RevokeByID revokes a single record if it is not revoked yet.

		Returns:
		  - bool: true when this call performed the revocation
	*/
	RevokeByID(context context.Context, id string, at time.Time) (bool, error)

	/*
		RevokeBySession revokes every live record bound to a session.

		Returns:
		  - int64: Number of records revoked
	*/
	RevokeBySession(context context.Context, sessionID string, at time.Time) (int64, error)

	/*
		RevokeByUser revokes every live record of a user.

		Returns:
		  - int64: Number of records revoked
	*/
	RevokeByUser(context context.Context, userID string, at time.Time) (int64, error)

	/*
		DeleteExpired removes records whose refresh token expired before cutoff.

		Returns:
		  - int64: Number of records removed
	*/
	DeleteExpired(context context.Context, cutoff time.Time) (int64, error)
}
