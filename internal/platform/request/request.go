// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package requestutil reads the parts of an incoming request the handlers
// care about: a bounded JSON body, chi path parameters and the caller's
// access token claims.
package requestutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/ctxutil"
	"github.com/taibuivan/votegate/internal/platform/validate"
)

// maxBodyBytes caps every JSON body. The largest legitimate payload is a
// biometric registration, far below this.
const maxBodyBytes = 64 << 10

// DecodeJSON decodes the body into target. An empty, oversized or malformed
// body yields [validate.ErrInvalidJSON].
func DecodeJSON(request *http.Request, target any) error {
	if err := json.NewDecoder(io.LimitReader(request.Body, maxBodyBytes)).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

// DecodeOptionalJSON is [DecodeJSON] for endpoints whose body may be omitted;
// an empty body leaves target untouched.
func DecodeOptionalJSON(request *http.Request, target any) error {
	if request.Body == nil || request.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(request.Body, maxBodyBytes)).Decode(target)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return validate.ErrInvalidJSON
}

// ID returns a path parameter such as {sessionId}.
func ID(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

// RequiredUserID returns the user behind the access token, or 401 for
// anonymous callers.
func RequiredUserID(request *http.Request) (string, error) {
	claims := ctxutil.Principal(request.Context())
	if claims == nil || claims.UserID == "" {
		return "", apperr.Unauthorized("Authentication required")
	}
	return claims.UserID, nil
}
