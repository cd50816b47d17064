// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"time"
)

// # Session Data Access

// Repository defines the data access contract for authentication sessions.
//
// Every mutating method is a single conditional statement so concurrent requests
// for the same session cannot regress its state.
type Repository interface {

	/*
		Create persists a brand-new session.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByID returns the session with the given identifier.

		Returns:
		  - *Session: Hydrated entity
		  - error: apperr.NotFound or database errors
	*/
	FindByID(context context.Context, id string) (*Session, error)

	/*
		AdvanceStep raises step_number to target when target >= the current step.

		Returns:
		  - bool: false when the session is unknown or target would regress it
		  - error: Database errors
	*/
	AdvanceStep(context context.Context, id string, target int) (bool, error)

	/*
		MarkFlag sets one flag on an active session and raises step_number to step.

		Returns:
		  - Flags: The full flag set after the update
		  - bool: false when no active session matched
		  - error: Database errors
	*/
	MarkFlag(context context.Context, id string, flag Flag, step int) (Flags, bool, error)

	/*
		MarkPrefilled records that profile data was pre-filled from an SSO assertion.
	*/
	MarkPrefilled(context context.Context, id string) error

	/*
		Complete moves an active session to completed.

		Returns:
		  - bool: false when the session was not active
		  - error: Database errors
	*/
	Complete(context context.Context, id string, completedAt time.Time) (bool, error)

	/*
		Terminate moves an active session to logged_out.

		Returns:
		  - bool: false when the session was not active (already terminal)
		  - error: Database errors
	*/
	Terminate(context context.Context, id string) (bool, error)

	/*
		TerminateByUser moves every active session of a user to logged_out.

		Returns:
		  - int64: Number of sessions closed
		  - error: Database errors
	*/
	TerminateByUser(context context.Context, userID string) (int64, error)
}
