// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"
	"strings"

	"github.com/taibuivan/votegate/internal/platform/constants"
)

// CORSConfig is the part of the configuration CORS needs.
type CORSConfig interface {
	IsDevelopment() bool
}

var (
	corsAllowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsAllowHeaders  = strings.Join([]string{"Accept", "Content-Type", constants.HeaderAuthorization, constants.HeaderXRequestID, constants.HeaderDeviceID}, ", ")
	corsExposeHeaders = strings.Join([]string{constants.HeaderXRequestID, constants.HeaderRetryAfter}, ", ")
)

// CORS lets the voting frontend call the gateway with credentials.
//
// Any origin is echoed in development. Elsewhere only origins whose host ends
// in allowedSuffix are, and an empty suffix allows none.
func CORS(cfg CORSConfig, allowedSuffix string) func(http.Handler) http.Handler {
	allowed := func(origin string) bool {
		if cfg.IsDevelopment() {
			return true
		}
		return allowedSuffix != "" && strings.HasSuffix(origin, allowedSuffix)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			origin := request.Header.Get(constants.HeaderOrigin)
			if origin == "" {
				next.ServeHTTP(writer, request)
				return
			}

			header := writer.Header()
			header.Add("Vary", constants.HeaderOrigin)
			if allowed(origin) {
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Methods", corsAllowMethods)
				header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				header.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				header.Set("Access-Control-Allow-Credentials", "true")
				header.Set("Access-Control-Max-Age", "300")
			}

			if request.Method == http.MethodOptions && request.Header.Get("Access-Control-Request-Method") != "" {
				writer.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}
