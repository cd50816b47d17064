// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import "context"

// # Identity Data Access

// Repository defines the data access contract for users, their profile details and roles.
type Repository interface {

	/*
		FindByContact returns the user whose email or phone matches exactly.
		Empty arguments never match.

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or database errors
	*/
	FindByContact(context context.Context, email, phone string) (*User, error)

	// FindByID returns a user by primary key.
	FindByID(context context.Context, id string) (*User, error)

	// FindByExternalSubject returns the user linked to an SSO subject.
	FindByExternalSubject(context context.Context, subject string) (*User, error)

	/*
		Create inserts a new user.

		Returns:
		  - error: apperr.Conflict when email, phone or subject is taken
	*/
	Create(context context.Context, user *User) error

	// LinkExternalSubject records subject on a user that has none yet.
	LinkExternalSubject(context context.Context, userID, subject string) error

	// MarkActivated flags the user as activated.
	MarkActivated(context context.Context, userID string) error

	// HasDetails reports whether a profile-details row exists.
	HasDetails(context context.Context, userID string) (bool, error)

	// FindDetails returns the profile-details row of a user.
	FindDetails(context context.Context, userID string) (*Details, error)

	/*
		UpsertDetails creates or updates the profile-details row.

		Parameters:
		  - overwrite: when false, only columns that are currently empty are
		    filled; when true, provided values replace existing ones.
	*/
	UpsertDetails(context context.Context, details *Details, overwrite bool) error

	// AssignRole grants a role; granting an existing role is a no-op.
	AssignRole(context context.Context, userID, role, source string) error

	// Roles lists the active role names of a user.
	Roles(context context.Context, userID string) ([]string, error)
}
