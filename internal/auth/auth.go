// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth orchestrates the authentication flow across the domain packages.

	identity check | SSO callback → session → OTP + enrollment → complete → logout

It owns no storage of its own. Every multi-entity write is delegated to the
session, identity and credential services inside one transaction.
*/
package auth

import (
	"time"

	"github.com/taibuivan/votegate/internal/credential"
	"github.com/taibuivan/votegate/internal/identity"
	"github.com/taibuivan/votegate/internal/session"
	"github.com/taibuivan/votegate/internal/sso"
	"github.com/taibuivan/votegate/pkg/pointer"
)

// # Results

// SessionStart is returned when a session is opened by either entry point.
type SessionStart struct {
	SessionID   string        `json:"sessionId"`
	UserID      string        `json:"userId"`
	IsFirstTime bool          `json:"isFirstTime"`
	NextStep    int           `json:"nextStep"`
	Flags       session.Flags `json:"sessionFlags"`
	ExpiresAt   time.Time     `json:"expiresAt"`
}

func startFrom(opened *session.Session) SessionStart {
	return SessionStart{
		SessionID:   opened.ID,
		UserID:      opened.UserID,
		IsFirstTime: opened.IsFirstTime,
		NextStep:    opened.NextStep(),
		Flags:       opened.Flags,
		ExpiresAt:   opened.ExpiresAt,
	}
}

// PrefillData is the profile the client can show for confirmation after SSO.
type PrefillData struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Age       *int   `json:"age"`
	Gender    string `json:"gender"`
	Country   string `json:"country"`
	City      string `json:"city"`
	Timezone  string `json:"timezone"`
	Language  string `json:"language"`
}

// prefillFrom prefers the stored details and falls back to the assertion.
func prefillFrom(details *identity.Details, assertion *sso.Assertion) *PrefillData {
	prefill := &PrefillData{
		FirstName: assertion.FirstName,
		LastName:  assertion.LastName,
		Age:       assertion.Age,
		Gender:    assertion.Gender,
		Country:   assertion.Country,
		Timezone:  identity.DefaultTimezone,
		Language:  identity.DefaultLanguage,
	}
	if details == nil {
		return prefill
	}

	prefill.FirstName = firstNonEmpty(details.FirstName, prefill.FirstName)
	prefill.LastName = firstNonEmpty(details.LastName, prefill.LastName)
	prefill.Gender = firstNonEmpty(details.Gender, prefill.Gender)
	prefill.Country = firstNonEmpty(details.Country, prefill.Country)
	prefill.City = details.City
	prefill.Timezone = firstNonEmpty(details.Timezone, prefill.Timezone)
	prefill.Language = firstNonEmpty(details.Language, prefill.Language)
	if details.Age != nil {
		prefill.Age = pointer.To(*details.Age)
	}
	return prefill
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// SSOStart extends [SessionStart] with the reconciliation outcome.
type SSOStart struct {
	SessionStart
	IsNewUser   bool         `json:"isNewUser"`
	PrefillData *PrefillData `json:"prefillData"`
	Message     string       `json:"message"`
}

// TokenCheck is the outcome of a non-consuming SSO token check.
type TokenCheck struct {
	Valid  bool           `json:"valid"`
	Code   string         `json:"code,omitempty"`
	Claims *sso.Assertion `json:"claims,omitempty"`
}

// Completion is returned once, when a session is finalized.
type Completion struct {
	SessionID   string            `json:"sessionId"`
	User        *identity.Profile `json:"user"`
	Credentials *credential.Pair  `json:"credentials"`

	// EnrollmentIncomplete lists advisory enrollment flags still unset.
	EnrollmentIncomplete []string `json:"enrollmentIncomplete,omitempty"`
}

// LogoutInput names what to log out. At least one field must resolve.
type LogoutInput struct {
	SessionID   string
	UserID      string
	AccessToken string
}

// LogoutResult summarizes what a logout closed.
type LogoutResult struct {
	SessionID          string `json:"sessionId,omitempty"`
	UserID             string `json:"userId,omitempty"`
	SessionsClosed     int64  `json:"sessionsClosed"`
	CredentialsRevoked int64  `json:"credentialsRevoked"`
}
