// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package respond writes the gateway's JSON envelopes.
//
// Success bodies are {"data": ...}. Failures are {"error", "code", "details"};
// the voting frontend switches on "code" to pick the next step of the session
// flow, so codes are part of the public contract.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/ctxutil"
)

// SuccessEnvelope wraps every successful payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope is the body of every failed request.
type ErrorEnvelope struct {
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// JSON writes payload as-is with the given status.
func JSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.Header().Set("Cache-Control", "no-store")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes 200 with data inside a [SuccessEnvelope].
func OK(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Data: data})
}

// Error maps err onto an [ErrorEnvelope]. Errors that are not an
// [apperr.AppError] become a generic 500 and their text never reaches the client.
func Error(writer http.ResponseWriter, request *http.Request, err error) {
	logger := ctxutil.Logger(request.Context())

	var appError *apperr.AppError
	if !errors.As(err, &appError) {
		logger.ErrorContext(request.Context(), "unclassified_error",
			slog.String("request_id", ctxutil.RequestID(request.Context())),
			slog.Any("error", err),
		)
		appError = apperr.Internal(err)
	}

	switch {
	case appError.HTTPStatus >= http.StatusInternalServerError:
		logger.ErrorContext(request.Context(), "request_failed",
			slog.String("code", appError.Code),
			slog.String("request_id", ctxutil.RequestID(request.Context())),
			slog.Any("cause", appError.Cause),
		)
	case appError.HTTPStatus == http.StatusUnauthorized, appError.HTTPStatus == http.StatusTooManyRequests:
		logger.InfoContext(request.Context(), "request_rejected",
			slog.String("code", appError.Code),
			slog.Int("status", appError.HTTPStatus),
		)
	}

	JSON(writer, appError.HTTPStatus, ErrorEnvelope{
		Error:   appError.Message,
		Code:    appError.Code,
		Details: appError.Details,
	})
}
