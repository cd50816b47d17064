// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package redis_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/taibuivan/votegate/internal/platform/redis"
)

/* TestNewClient verifies the client connects and the readiness probe follows the server. */
func TestNewClient(t *testing.T) {
	server := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := redisstore.NewClient(context.Background(), "redis://"+server.Addr()+"/0",
		redisstore.PoolSettings{PoolSize: 4, MinIdleConns: 1}, logger)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 4, client.Options().PoolSize)
	assert.NoError(t, redisstore.Ping(context.Background(), client))

	server.Close()
	assert.Error(t, redisstore.Ping(context.Background(), client))
}

/* TestNewClient_InvalidURL verifies malformed URLs fail before dialing. */
func TestNewClient_InvalidURL(t *testing.T) {
	_, err := redisstore.NewClient(context.Background(), "http://localhost:6379", redisstore.PoolSettings{}, slog.Default())
	assert.Error(t, err)
}
