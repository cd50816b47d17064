// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package enrollment

import (
	"context"
	"time"
)

// # Enrollment Data Access

// Repository defines the data access contract for enrollment artefacts.
type Repository interface {

	// ReplacePrimaryBiometric demotes the user's current primary biometric and inserts biometric as primary.
	ReplacePrimaryBiometric(context context.Context, biometric *Biometric) error

	/*
		PrimaryBiometric returns the user's primary biometric.

		Parameters:
		  - kind: restricts the lookup to one modality; empty matches any

		Returns:
		  - error: apperr.NotFound (BIOMETRIC_NOT_FOUND) or database errors
	*/
	PrimaryBiometric(context context.Context, userID string, kind BiometricType) (*Biometric, error)

	// RecordBiometricCheck updates the verification or failure counter of a biometric.
	RecordBiometricCheck(context context.Context, id string, verified bool, at time.Time) error

	// UpsertDevice inserts the device or refreshes its last-use data.
	UpsertDevice(context context.Context, device *Device) error

	// ReplaceBackupCodes drops the user's unused codes and stores the new hashes.
	ReplaceBackupCodes(context context.Context, userID string, hashes []string, at time.Time) error

	/*
		RedeemBackupCode consumes one unused code.

		Returns:
		  - bool: false when no unused code matches
	*/
	RedeemBackupCode(context context.Context, userID, hash string, at time.Time) (bool, error)

	// RemainingBackupCodes counts the user's unused codes.
	RemainingBackupCodes(context context.Context, userID string) (int, error)

	// RandomQuestions returns up to limit active catalogue questions in random order.
	RandomQuestions(context context.Context, limit int) ([]Question, error)

	// ActiveQuestionIDs returns the subset of ids that are active catalogue questions.
	ActiveQuestionIDs(context context.Context, ids []int) ([]int, error)

	// ReplaceAnswers stores the user's answers, discarding earlier ones.
	ReplaceAnswers(context context.Context, userID, sessionID string, answers []StoredAnswer, at time.Time) error

	// Answers returns the user's stored answers.
	Answers(context context.Context, userID string) ([]StoredAnswer, error)
}

// QuestionSelections remembers which questions a session was offered.
type QuestionSelections interface {
	Save(context context.Context, sessionID string, ids []int, ttl time.Duration) error

	// Load returns nil when the session was never offered a selection.
	Load(context context.Context, sessionID string) ([]int, error)
}
