// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/constants"
	"github.com/taibuivan/votegate/internal/platform/ctxutil"
	"github.com/taibuivan/votegate/internal/platform/respond"
	"github.com/taibuivan/votegate/internal/platform/sec"
)

// TokenVerifier checks an access token's signature, expiry and revocation record.
type TokenVerifier interface {
	VerifyAccess(context context.Context, token string) (*sec.AuthClaims, error)
}

// Authenticate attaches the caller's claims when a valid bearer token is sent.
//
// It never rejects. A missing, malformed or revoked token leaves the request
// anonymous, so logout still works with a stale token and routes that need a
// caller use [RequireAuth].
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			token, present, wellFormed := BearerToken(request)
			if !present || !wellFormed {
				next.ServeHTTP(writer, request)
				return
			}

			claims, err := verifier.VerifyAccess(request.Context(), token)
			if err != nil {
				ctxutil.Logger(request.Context()).DebugContext(request.Context(), "bearer_token_ignored",
					slog.String("code", codeOf(err)),
				)
				next.ServeHTTP(writer, request)
				return
			}

			next.ServeHTTP(writer, request.WithContext(ctxutil.WithPrincipal(request.Context(), claims)))
		})
	}
}

// RequireAuth answers 401 unless [Authenticate] attached a caller.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.Principal(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// BearerToken parses "Authorization: Bearer <token>". present reports whether
// the header was sent; wellFormed whether it had the expected shape.
func BearerToken(request *http.Request) (token string, present, wellFormed bool) {
	header := request.Header.Get(constants.HeaderAuthorization)
	if header == "" {
		return "", false, false
	}

	scheme, value, found := strings.Cut(header, " ")
	value = strings.TrimSpace(value)
	if !found || !strings.EqualFold(scheme, "Bearer") || value == "" {
		return "", true, false
	}
	return value, true, true
}

func codeOf(err error) string {
	if appError := apperr.As(err); appError != nil {
		return appError.Code
	}
	return "UNCLASSIFIED"
}
