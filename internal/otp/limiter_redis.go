// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/constants"
)

// RedisIssueLimiter implements [IssueLimiter] with a fixed window counter per key.
type RedisIssueLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewIssueLimiter creates a limiter allowing limit issues per window.
func NewIssueLimiter(client *redis.Client, limit int, window time.Duration) *RedisIssueLimiter {
	return &RedisIssueLimiter{client: client, limit: limit, window: window}
}

/*
Allow counts one issue for (sessionID, channel).

The first INCR of a window sets its expiry; the counter resets when the key
expires.

Returns:
  - error: apperr.RateLimited (OTP_RATE_LIMITED) once the budget is spent
*/
func (limiter *RedisIssueLimiter) Allow(context context.Context, sessionID string, channel Channel) error {
	key := constants.RedisPrefixOTPIssue + sessionID + ":" + string(channel)

	count, err := limiter.client.Incr(context, key).Result()
	if err != nil {
		return fmt.Errorf("redis_otp_issue_limit_failed: %w", err)
	}

	if count == 1 {
		if err := limiter.client.Expire(context, key, limiter.window).Err(); err != nil {
			return fmt.Errorf("redis_otp_issue_limit_expire_failed: %w", err)
		}
	}

	if count <= int64(limiter.limit) {
		return nil
	}

	retryAfter := limiter.window
	if ttl, err := limiter.client.TTL(context, key).Result(); err == nil && ttl > 0 {
		retryAfter = ttl
	}
	return apperr.RateLimited(int(retryAfter.Round(time.Second).Seconds())).WithCode("OTP_RATE_LIMITED")
}
