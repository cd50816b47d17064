// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package respond_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/respond"
)

/* TestError verifies how errors are mapped onto the error envelope. */
func TestError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "coded rejection",
			err:        apperr.Unauthorized("Session has expired").WithCode("SESSION_EXPIRED"),
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"Session has expired","code":"SESSION_EXPIRED"}`,
		},
		{
			name: "validation details",
			err: apperr.ValidationError("Request validation failed",
				apperr.FieldError{Field: "email", Message: "must be a valid email address"}),
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Request validation failed","code":"VALIDATION_ERROR","details":[{"field":"email","message":"must be a valid email address"}]}`,
		},
		{
			name:       "unclassified error is hidden",
			err:        errors.New("pq: connection reset by peer"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respond.Error(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/session/complete", nil), test.err)

			assert.Equal(t, test.wantStatus, recorder.Code)
			assert.Equal(t, "no-store", recorder.Header().Get("Cache-Control"))
			if test.wantBody != "" {
				assert.JSONEq(t, test.wantBody, recorder.Body.String())
			}
			assert.NotContains(t, recorder.Body.String(), "connection reset")
		})
	}
}

/* TestOK verifies the success envelope. */
func TestOK(t *testing.T) {
	recorder := httptest.NewRecorder()
	respond.OK(recorder, map[string]bool{"valid": true})

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/json; charset=utf-8", recorder.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"valid":true}}`, recorder.Body.String())
}
