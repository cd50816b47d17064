// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package enrollment records the first-time-only steps of an authentication
session: profile details, biometric enrollment and security questions.

Every record operation requires an active first-time session, runs its writes
in one transaction, sets the matching session flag and returns the full flag
set together with the next step to render.

Secrets handed out here (backup codes) are returned exactly once, at
generation time. Only their hashes are stored.
*/
package enrollment

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/votegate/internal/platform/sec"
	"github.com/taibuivan/votegate/internal/session"
)

// # Biometrics

// BiometricType is the closed set of supported modalities.
type BiometricType string

const (
	BiometricFingerprint BiometricType = "fingerprint"
	BiometricFaceID      BiometricType = "face_id"
	BiometricIris        BiometricType = "iris"
	BiometricVoice       BiometricType = "voice"
	BiometricPalm        BiometricType = "palm"
)

// BiometricTypes lists every accepted [BiometricType] value.
var BiometricTypes = []string{
	string(BiometricFingerprint),
	string(BiometricFaceID),
	string(BiometricIris),
	string(BiometricVoice),
	string(BiometricPalm),
}

// Valid reports whether kind is supported.
func (kind BiometricType) Valid() bool {
	for _, allowed := range BiometricTypes {
		if string(kind) == allowed {
			return true
		}
	}
	return false
}

// DefaultQualityScore is stored when the client reports none.
const DefaultQualityScore = 95

// Biometric is an enrolled template, stored as a salted argon2id hash.
type Biometric struct {
	ID                string
	UserID            string
	SessionID         string
	Type              BiometricType
	TemplateHash      []byte
	Salt              []byte
	Params            sec.Argon2idParams
	QualityScore      int
	IsPrimary         bool
	IsVerified        bool
	VerificationCount int
	FailedAttempts    int
	CreatedAt         time.Time
}

// # Devices

// Device is the client device seen during biometric enrollment.
type Device struct {
	UserID     string
	SessionID  string
	DeviceID   string
	DeviceType string
	DeviceName string
	OS         string
	Browser    string
	IPAddress  string
	UserAgent  string
	LastUsed   time.Time
}

// # Security Questions

// Question is a catalogue entry offered during enrollment.
type Question struct {
	ID       int    `json:"id"`
	Text     string `json:"questionText"`
	Category string `json:"category"`
}

// Answer is a plain-text answer to one question.
type Answer struct {
	QuestionID int    `json:"questionId"`
	Answer     string `json:"answer"`
}

// StoredAnswer is the persisted form of an [Answer].
type StoredAnswer struct {
	QuestionID int
	AnswerHash string
}

// MinimumAnswers is the fewest answers accepted at enrollment.
const MinimumAnswers = 3

// normalizeAnswer makes equivalent answers hash identically. A Caser is not
// safe for concurrent use, so each call builds its own.
func normalizeAnswer(answer string) string {
	folded := cases.Fold().String(norm.NFKC.String(answer))
	return strings.Join(strings.Fields(folded), " ")
}

// # Results

// StepResult is returned by every record operation.
type StepResult struct {
	SessionID string        `json:"sessionId"`
	Flags     session.Flags `json:"sessionFlags"`
	NextStep  int           `json:"nextStep"`
}

// BiometricResult carries the backup codes, shown to the user only here.
type BiometricResult struct {
	StepResult
	BiometricID string   `json:"biometricId"`
	BackupCodes []string `json:"backupCodes"`
}

// AnswerCheck is the outcome of [Service.VerifyAnswers].
type AnswerCheck struct {
	Verified bool `json:"verified"`
	Correct  int  `json:"correct"`
	Required int  `json:"required"`
	Total    int  `json:"total"`
}

// RedeemResult is the outcome of [Service.RedeemBackupCode].
type RedeemResult struct {
	Redeemed  bool `json:"redeemed"`
	Remaining int  `json:"remaining"`
}
