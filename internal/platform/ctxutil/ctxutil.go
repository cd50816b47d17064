// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxutil carries per-request values through [context.Context]: the
// correlation id, the request-scoped logger and the verified access token
// claims of the caller.
//
// The keys are unexported struct types, so only this package can read or
// overwrite them.
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/taibuivan/votegate/internal/platform/sec"
)

type (
	requestIDKey struct{}
	loggerKey    struct{}
	principalKey struct{}
)

// # Correlation

// WithRequestID attaches the X-Request-ID value.
func WithRequestID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, requestIDKey{}, id)
}

// RequestID returns the correlation id, or "" outside a request.
func RequestID(context context.Context) string {
	id, _ := context.Value(requestIDKey{}).(string)
	return id
}

// # Logging

// WithLogger attaches a logger already enriched with request attributes.
func WithLogger(parent context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(parent, loggerKey{}, logger)
}

// Logger returns the request logger, falling back to [slog.Default].
func Logger(context context.Context) *slog.Logger {
	if logger, ok := context.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// # Principal

// WithPrincipal attaches the claims of a verified access token.
func WithPrincipal(parent context.Context, claims *sec.AuthClaims) context.Context {
	return context.WithValue(parent, principalKey{}, claims)
}

// Principal returns the caller's access token claims, or nil for anonymous requests.
func Principal(context context.Context) *sec.AuthClaims {
	claims, _ := context.Value(principalKey{}).(*sec.AuthClaims)
	return claims
}
