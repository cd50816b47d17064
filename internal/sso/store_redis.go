// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sso

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/votegate/internal/platform/constants"
	"github.com/taibuivan/votegate/internal/platform/sec"
)

// RedisReplayGuard implements [ReplayGuard] with SET NX.
type RedisReplayGuard struct {
	client *redis.Client
}

// NewReplayGuard creates a new Redis-backed ReplayGuard.
func NewReplayGuard(client *redis.Client) *RedisReplayGuard {
	return &RedisReplayGuard{client: client}
}

/*
Claim atomically records key for ttl.

Description: Keys are hashed so partner-supplied nonces never appear verbatim
in Redis.

Returns:
  - bool: true if this call claimed the key, false if it was already claimed
*/
func (guard *RedisReplayGuard) Claim(context context.Context, key string, ttl time.Duration) (bool, error) {
	redisKey := constants.RedisPrefixSSONonce + sec.HashToken(key)

	claimed, err := guard.client.SetNX(context, redisKey, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis_sso_nonce_claim_failed: %w", err)
	}

	return claimed, nil
}
