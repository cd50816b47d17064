// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"context"
	"time"
)

// # Code Data Access

// Repository defines the data access contract for one-time codes.
type Repository interface {

	// Create persists a newly issued code.
	Create(context context.Context, code *Code) error

	/*
		LatestUnused returns the most recent unused code of a session and channel.

		Returns:
		  - *Code: The candidate code, possibly expired or exhausted
		  - error: apperr.NotFound (OTP_NOT_FOUND) or database errors
	*/
	LatestUnused(context context.Context, sessionID string, channel Channel) (*Code, error)

	/*
		IncrementAttempts adds one failed attempt if the counter is still below max.

		Returns:
		  - bool: false when the cap was already reached (nothing was written)
	*/
	IncrementAttempts(context context.Context, id string, max int) (bool, error)

	/*
		MarkUsed consumes a code exactly once, and only while its attempt
		counter is still below max. The check and the write are one statement.

		Returns:
		  - Consumption: Consumed, or why nothing was written
	*/
	MarkUsed(context context.Context, id string, at time.Time, max int) (Consumption, error)
}

// Consumption is the outcome of [Repository.MarkUsed].
type Consumption int

const (
	Consumed Consumption = iota
	AlreadyUsed
	AttemptsExhausted
)

// IssueLimiter throttles how often codes may be requested.
type IssueLimiter interface {

	// Allow records one issue for (session, channel) and fails with
	// apperr.RateLimited when the window's budget is spent.
	Allow(context context.Context, sessionID string, channel Channel) error
}
