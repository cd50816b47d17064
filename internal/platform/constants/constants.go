// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants holds the fixed values of the gateway: HTTP server timing,
header and cookie names, and Redis key prefixes.

Anything an operator may want to tune per deployment (OTP expiry, token
lifetimes, session TTL) belongs in config instead.
*/
package constants

import "time"

const (
	AppName    = "votegate"
	AppVersion = "0.3.0"
)

// # Server Timing

const (
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 2 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 2 * time.Minute

	// GlobalRequestTimeout must stay above NotifierTimeout so an OTP send can
	// fail on its own terms.
	GlobalRequestTimeout = 30 * time.Second
	NotifierTimeout      = 10 * time.Second

	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// Per client address, across all routes. OTP issuing has its own
	// per-recipient budget on top.
	DefaultRateLimitRPS   = 20.0
	DefaultRateLimitBurst = 40

	RateLimitCleanupInterval = time.Minute
	RateLimitClientTTL       = 3 * time.Minute
)

// # Headers

const (
	HeaderAuthorization = "Authorization"
	HeaderDeviceID      = "X-Device-ID"
	HeaderOrigin        = "Origin"
	HeaderRetryAfter    = "Retry-After"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXRequestID    = "X-Request-ID"
)

// # Cookies
//
// Set on session completion, cleared on logout. Names are read by the
// voting frontend.

const (
	CookieAccessToken  = "accessToken"
	CookieRefreshToken = "refreshToken"
	CookieSessionID    = "sessionId"
	CookiePath         = "/"

	SessionCookieTTL = 24 * time.Hour
)

// # Redis Keys

const (
	RedisPrefixOTPIssue     = "auth:otp_issue:"
	RedisPrefixSSONonce     = "auth:sso_nonce:"
	RedisPrefixQuestionPick = "auth:question_pick:"
)

// DefaultRole is granted on first enrollment.
const DefaultRole = "Voter"
