// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/votegate/internal/platform/apperr"
)

/* TestWithCode verifies refinement copies instead of mutating the original. */
func TestWithCode(t *testing.T) {
	base := apperr.NotFound("User")
	refined := base.WithCode("USER_NOT_FOUND")

	assert.Equal(t, "NOT_FOUND", base.Code)
	assert.Equal(t, "USER_NOT_FOUND", refined.Code)
	assert.Equal(t, http.StatusNotFound, refined.HTTPStatus)
	assert.Equal(t, "User not found", refined.Error())
}

/* TestInspection verifies the helpers look through wrapped errors. */
func TestInspection(t *testing.T) {
	cause := errors.New("no rows")
	wrapped := fmt.Errorf("service_find_failed: %w", apperr.NotFound("Session").WithCode("SESSION_NOT_FOUND").WithCause(cause))

	assert.True(t, apperr.IsAppError(wrapped))
	assert.True(t, apperr.IsNotFound(wrapped))
	assert.True(t, apperr.HasCode(wrapped, "SESSION_NOT_FOUND"))
	assert.False(t, apperr.HasCode(wrapped, "NOT_FOUND"))
	assert.ErrorIs(t, wrapped, cause)

	require.NotNil(t, apperr.As(wrapped))
	assert.Nil(t, apperr.As(cause))
	assert.False(t, apperr.IsNotFound(apperr.Conflict("duplicate")))
}

/* TestRateLimited verifies the retry hint never drops below one second. */
func TestRateLimited(t *testing.T) {
	assert.Equal(t, "Too many requests. Try again in 1s.", apperr.RateLimited(0).Message)
	assert.Equal(t, http.StatusTooManyRequests, apperr.RateLimited(30).HTTPStatus)
}
