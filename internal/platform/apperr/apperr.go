// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr is the error vocabulary of the gateway.

Services return an [*AppError] for every outcome the client is expected to
react to: a missing user, a spent OTP, an unmet completion gate. The HTTP layer
turns it into a status and an envelope without inspecting the service.

Each constructor sets a generic code ("NOT_FOUND", "UNAUTHORIZED", ...). The
session flow relies on narrower codes, attached with [AppError.WithCode]:

	apperr.Unauthorized("Code has expired").WithCode("OTP_EXPIRED")
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a client-facing failure.
//
// Cause is kept for logs. It is never serialized.
type AppError struct {
	Code       string       `json:"code"`
	Message    string       `json:"error"`
	HTTPStatus int          `json:"-"`
	Cause      error        `json:"-"`
	Details    []FieldError `json:"details,omitempty"`
}

// FieldError points at one offending input field, or at one unmet requirement
// of the completion gate.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Cause }

func newError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// # Constructors

// NotFound reports a missing entity, e.g. NotFound("Session").
func NotFound(entity string) *AppError {
	return newError(http.StatusNotFound, "NOT_FOUND", entity+" not found")
}

// Unauthorized is used for every credential or proof the gateway refuses.
func Unauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(message string) *AppError {
	return newError(http.StatusForbidden, "FORBIDDEN", message)
}

// Conflict reports a uniqueness clash or an action repeated on a finished resource.
func Conflict(message string) *AppError {
	return newError(http.StatusConflict, "CONFLICT", message)
}

// InvalidTransition reports an attempt to move a session backwards.
func InvalidTransition(message string) *AppError {
	return newError(http.StatusConflict, "INVALID_TRANSITION", message)
}

// ValidationError is a 400 carrying per-field details.
func ValidationError(message string, details ...FieldError) *AppError {
	validation := newError(http.StatusBadRequest, "VALIDATION_ERROR", message)
	validation.Details = details
	return validation
}

// RateLimited is a 429 telling the client when to retry.
func RateLimited(retryAfterSeconds int) *AppError {
	return newError(http.StatusTooManyRequests, "RATE_LIMITED",
		fmt.Sprintf("Too many requests. Try again in %ds.", max(retryAfterSeconds, 1)))
}

// Internal hides cause behind a generic 500.
func Internal(cause error) *AppError {
	internal := newError(http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	internal.Cause = cause
	return internal
}

// # Refinement

// WithCode returns a copy with a narrower code.
func (e *AppError) WithCode(code string) *AppError {
	refined := *e
	refined.Code = code
	return &refined
}

// WithCause returns a copy that also records cause for logging.
func (e *AppError) WithCause(cause error) *AppError {
	refined := *e
	refined.Cause = cause
	return &refined
}

// # Inspection

// As returns the first [*AppError] in err's chain, or nil.
func As(err error) *AppError {
	var target *AppError
	if errors.As(err, &target) {
		return target
	}
	return nil
}

// IsAppError reports whether err carries an [*AppError].
func IsAppError(err error) bool {
	return As(err) != nil
}

// HasCode reports whether err carries an [*AppError] with exactly this code.
func HasCode(err error, code string) bool {
	target := As(err)
	return target != nil && target.Code == code
}

// IsNotFound reports whether err carries a 404 [*AppError], whatever its code.
func IsNotFound(err error) bool {
	target := As(err)
	return target != nil && target.HTTPStatus == http.StatusNotFound
}
