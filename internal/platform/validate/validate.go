// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package validate collects field problems and reports them as one
// VALIDATION_ERROR.
//
// Handlers check request shape with it and services check business bounds
// (age, answer counts), so clients see the same body either way.
package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/taibuivan/votegate/internal/platform/apperr"
)

var (
	// E.164 after [StripPhone]; the leading + is optional on input.
	phonePattern     = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)
	sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

	// ErrInvalidJSON is returned for bodies that do not decode.
	ErrInvalidJSON = apperr.ValidationError("Invalid JSON payload")
)

const failedMessage = "Validation failed"

// Validator accumulates problems. Use a fresh one per request; it is not
// safe for concurrent use.
type Validator struct {
	problems []apperr.FieldError
}

func (v *Validator) fail(field, message string) *Validator {
	v.problems = append(v.problems, apperr.FieldError{Field: field, Message: message})
	return v
}

// # Presence and Length

func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.fail(field, "This field is required")
	}
	return v
}

// MaxLen counts runes, not bytes.
func (v *Validator) MaxLen(field, value string, limit int) *Validator {
	if utf8.RuneCountInString(value) > limit {
		return v.fail(field, fmt.Sprintf("Maximum %d characters", limit))
	}
	return v
}

func (v *Validator) Range(field string, value, low, high int) *Validator {
	if value < low || value > high {
		return v.fail(field, fmt.Sprintf("Must be between %d and %d", low, high))
	}
	return v
}

// # Formats

// Email accepts a bare address only; "Name <addr>" forms are refused.
func (v *Validator) Email(field, value string) *Validator {
	parsed, err := mail.ParseAddress(value)
	if err != nil || parsed.Address != strings.TrimSpace(value) {
		return v.fail(field, "Must be a valid email address")
	}
	return v
}

// Phone accepts E.164 with common formatting, e.g. "+1 (555) 010-9999".
func (v *Validator) Phone(field, value string) *Validator {
	if !phonePattern.MatchString(StripPhone(value)) {
		return v.fail(field, "Must be a valid phone number in international format")
	}
	return v
}

// Numeric accepts low to high ASCII digits, as sent in one-time codes.
func (v *Validator) Numeric(field, value string, low, high int) *Validator {
	digitsOnly := strings.IndexFunc(value, func(r rune) bool { return r < '0' || r > '9' }) < 0
	if !digitsOnly || len(value) < low || len(value) > high {
		return v.fail(field, fmt.Sprintf("Must be %d to %d digits", low, high))
	}
	return v
}

func (v *Validator) SessionID(field, value string) *Validator {
	if !sessionIDPattern.MatchString(value) {
		return v.fail(field, "Must be a valid session id")
	}
	return v
}

func (v *Validator) UUID(field, value string) *Validator {
	if _, err := uuid.Parse(value); err != nil || len(value) != 36 {
		return v.fail(field, "Must be a valid UUID")
	}
	return v
}

func (v *Validator) OneOf(field, value string, allowed ...string) *Validator {
	if !slices.Contains(allowed, value) {
		return v.fail(field, "Must be one of: "+strings.Join(allowed, ", "))
	}
	return v
}

// Custom records message when failed is true:
//
//	v.Custom("age", input.Age == nil, "This field is required")
func (v *Validator) Custom(field string, failed bool, message string) *Validator {
	if failed {
		return v.fail(field, message)
	}
	return v
}

// # Result

// Err returns nil, or one VALIDATION_ERROR listing every problem in order.
func (v *Validator) Err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return apperr.ValidationError(failedMessage, v.problems...)
}

func (v *Validator) HasErrors() bool { return len(v.problems) > 0 }

// Invalid builds a VALIDATION_ERROR for a single field without a Validator.
func Invalid(field, message string) *apperr.AppError {
	return apperr.ValidationError(failedMessage, apperr.FieldError{Field: field, Message: message})
}

// StripPhone drops spaces, dashes, dots and parentheses.
func StripPhone(value string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(" -().", r) {
			return -1
		}
		return r
	}, strings.TrimSpace(value))
}
