// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package enrollment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/votegate/internal/platform/constants"
)

// RedisQuestionSelections implements [QuestionSelections] with one Redis set per session.
type RedisQuestionSelections struct {
	client *redis.Client
}

// NewQuestionSelections creates a Redis-backed selection store.
func NewQuestionSelections(client *redis.Client) *RedisQuestionSelections {
	return &RedisQuestionSelections{client: client}
}

// Save replaces the session's selection atomically.
func (store *RedisQuestionSelections) Save(context context.Context, sessionID string, ids []int, ttl time.Duration) error {
	key := constants.RedisPrefixQuestionPick + sessionID

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = strconv.Itoa(id)
	}

	pipe := store.client.TxPipeline()
	pipe.Del(context, key)
	if len(members) > 0 {
		pipe.SAdd(context, key, members...)
		pipe.Expire(context, key, ttl)
	}

	if _, err := pipe.Exec(context); err != nil {
		return fmt.Errorf("redis_question_selection_save_failed: %w", err)
	}
	return nil
}

// Load returns the selected ids, or nil when none were saved.
func (store *RedisQuestionSelections) Load(context context.Context, sessionID string) ([]int, error) {
	key := constants.RedisPrefixQuestionPick + sessionID

	members, err := store.client.SMembers(context, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis_question_selection_load_failed: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]int, 0, len(members))
	for _, member := range members {
		id, err := strconv.Atoi(member)
		if err != nil {
			return nil, fmt.Errorf("redis_question_selection_decode_failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
