// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session implements the authentication session state machine.

A session is one attempt to turn an identity claim into issued credentials. It
tracks which proofs have been supplied (email, SMS) and, for first-time users,
which enrollment steps are done.

Invariants:

  - Each flag moves false → true once and never reverts.
  - StepNumber never decreases.
  - Persisted status moves only active → completed or active → logged_out.
  - IsFirstTime is computed at creation and never re-derived.
*/
package session

import (
	"fmt"
	"time"
)

// # Authentication Method

// AuthMethod is the closed set of entry points that can open a session.
type AuthMethod int

const (
	// AuthMethodDirectCheck is a lookup by email or phone.
	AuthMethodDirectCheck AuthMethod = iota + 1

	// AuthMethodSSOAssertion is a signed assertion from the external identity provider.
	AuthMethodSSOAssertion
)

// String returns the persisted representation of the method.
func (method AuthMethod) String() string {
	switch method {
	case AuthMethodDirectCheck:
		return "direct_check"
	case AuthMethodSSOAssertion:
		return "sso_assertion"
	default:
		return fmt.Sprintf("auth_method(%d)", int(method))
	}
}

// MarshalText implements encoding.TextMarshaler so JSON carries the string form.
func (method AuthMethod) MarshalText() ([]byte, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("session: invalid auth method %d", int(method))
	}
	return []byte(method.String()), nil
}

// Valid reports whether method is one of the declared variants.
func (method AuthMethod) Valid() bool {
	switch method {
	case AuthMethodDirectCheck, AuthMethodSSOAssertion:
		return true
	default:
		return false
	}
}

// ParseAuthMethod converts the persisted string back into an [AuthMethod].
func ParseAuthMethod(value string) (AuthMethod, error) {
	switch value {
	case "direct_check":
		return AuthMethodDirectCheck, nil
	case "sso_assertion":
		return AuthMethodSSOAssertion, nil
	default:
		return 0, fmt.Errorf("session: unknown auth method %q", value)
	}
}

// # Status

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusLoggedOut Status = "logged_out"

	// StatusExpired is never written. It is reported for active sessions past ExpiresAt.
	StatusExpired Status = "expired"
)

// # Flags

// Flag names one completion flag of a session.
type Flag int

const (
	FlagEmailVerified Flag = iota + 1
	FlagSMSVerified
	FlagUserDetailsCollected
	FlagBiometricCollected
	FlagSecurityQuestionsAnswered
)

// Step numbers reached when each flag is set. StepCheck is the initial step.
const (
	StepCheck                   = 1
	StepEmailVerified           = 3
	StepSMSVerified             = 4
	StepUserDetailsCollected    = 5
	StepBiometricCollected      = 6
	StepSecurityQuestionsAnswer = 7
)

// Step returns the step number a session reaches once flag is set.
func (flag Flag) Step() int {
	switch flag {
	case FlagEmailVerified:
		return StepEmailVerified
	case FlagSMSVerified:
		return StepSMSVerified
	case FlagUserDetailsCollected:
		return StepUserDetailsCollected
	case FlagBiometricCollected:
		return StepBiometricCollected
	case FlagSecurityQuestionsAnswered:
		return StepSecurityQuestionsAnswer
	default:
		return 0
	}
}

// String returns the JSON field name of the flag.
func (flag Flag) String() string {
	switch flag {
	case FlagEmailVerified:
		return "emailVerified"
	case FlagSMSVerified:
		return "smsVerified"
	case FlagUserDetailsCollected:
		return "userDetailsCollected"
	case FlagBiometricCollected:
		return "biometricCollected"
	case FlagSecurityQuestionsAnswered:
		return "securityQuestionsAnswered"
	default:
		return fmt.Sprintf("flag(%d)", int(flag))
	}
}

// Flags is the progress snapshot returned to clients after every step.
type Flags struct {
	EmailVerified             bool `json:"emailVerified"`
	SMSVerified               bool `json:"smsVerified"`
	UserDetailsCollected      bool `json:"userDetailsCollected"`
	BiometricCollected        bool `json:"biometricCollected"`
	SecurityQuestionsAnswered bool `json:"securityQuestionsAnswered"`
}

// Has reports whether flag is set.
func (flags Flags) Has(flag Flag) bool {
	switch flag {
	case FlagEmailVerified:
		return flags.EmailVerified
	case FlagSMSVerified:
		return flags.SMSVerified
	case FlagUserDetailsCollected:
		return flags.UserDetailsCollected
	case FlagBiometricCollected:
		return flags.BiometricCollected
	case FlagSecurityQuestionsAnswered:
		return flags.SecurityQuestionsAnswered
	default:
		return false
	}
}

// With returns a copy with flag set. Flags never clear.
func (flags Flags) With(flag Flag) Flags {
	switch flag {
	case FlagEmailVerified:
		flags.EmailVerified = true
	case FlagSMSVerified:
		flags.SMSVerified = true
	case FlagUserDetailsCollected:
		flags.UserDetailsCollected = true
	case FlagBiometricCollected:
		flags.BiometricCollected = true
	case FlagSecurityQuestionsAnswered:
		flags.SecurityQuestionsAnswered = true
	}
	return flags
}

// enrollmentFlags are required only from first-time users.
var enrollmentFlags = []Flag{FlagUserDetailsCollected, FlagBiometricCollected, FlagSecurityQuestionsAnswered}

// contactFlags are required from every user.
var contactFlags = []Flag{FlagEmailVerified, FlagSMSVerified}

// # Client Metadata

// ClientMeta is captured from the request that opened the session.
type ClientMeta struct {
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
	DeviceID  string `json:"deviceId"`
}

// # Domain Entity

// Session is one authentication attempt.
type Session struct {
	ID              string     `json:"sessionId"`
	UserID          string     `json:"userId"`
	IsFirstTime     bool       `json:"isFirstTime"`
	StepNumber      int        `json:"stepNumber"`
	Flags           Flags      `json:"sessionFlags"`
	AuthMethod      AuthMethod `json:"authMethod"`
	ExternalSubject string     `json:"-"`
	Prefilled       bool       `json:"prefilled"`
	Status          Status     `json:"status"`
	Client          ClientMeta `json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// EffectiveStatus reports StatusExpired for an active session past its expiry.
func (session *Session) EffectiveStatus(now time.Time) Status {
	if session.Status == StatusActive && !now.Before(session.ExpiresAt) {
		return StatusExpired
	}
	return session.Status
}

// NextStep returns the step the client should render next.
//
// # Steps
//
//	2 email OTP, 3 SMS OTP, 4 profile, 5 biometric, 6 security questions, 7 ready to complete
func (session *Session) NextStep() int {
	switch {
	case !session.Flags.EmailVerified:
		return 2
	case !session.Flags.SMSVerified:
		return 3
	case !session.IsFirstTime:
		return 7
	case !session.Flags.UserDetailsCollected:
		return 4
	case !session.Flags.BiometricCollected:
		return 5
	case !session.Flags.SecurityQuestionsAnswered:
		return 6
	default:
		return 7
	}
}

// missing returns the names of unset flags among candidates.
func (flags Flags) missing(candidates []Flag) []string {
	var names []string
	for _, flag := range candidates {
		if !flags.Has(flag) {
			names = append(names, flag.String())
		}
	}
	return names
}
