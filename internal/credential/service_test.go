// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package credential_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/votegate/internal/credential"
	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/sec"
)

type memoryRepository struct {
	mu      sync.Mutex
	records []*credential.Record
}

func (repository *memoryRepository) Create(_ context.Context, record *credential.Record) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	clone := *record
	repository.records = append(repository.records, &clone)
	return nil
}

func (repository *memoryRepository) FindByTokenHash(_ context.Context, kind sec.TokenKind, hash string) (*credential.Record, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for _, record := range repository.records {
		if (kind == sec.KindAccess && record.AccessTokenHash == hash) || (kind == sec.KindRefresh && record.RefreshTokenHash == hash) {
			clone := *record
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Credential")
}

func (repository *memoryRepository) revokeWhere(match func(*credential.Record) bool, at time.Time) int64 {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	var count int64
	for _, record := range repository.records {
		if match(record) && !record.IsRevoked {
			record.IsRevoked = true
			record.RevokedAt = &at
			count++
		}
	}
	return count
}

func (repository *memoryRepository) RevokeByID(_ context.Context, id string, at time.Time) (bool, error) {
	return repository.revokeWhere(func(r *credential.Record) bool { return r.ID == id }, at) == 1, nil
}

func (repository *memoryRepository) RevokeBySession(_ context.Context, sessionID string, at time.Time) (int64, error) {
	return repository.revokeWhere(func(r *credential.Record) bool { return r.SessionID == sessionID }, at), nil
}

func (repository *memoryRepository) RevokeByUser(_ context.Context, userID string, at time.Time) (int64, error) {
	return repository.revokeWhere(func(r *credential.Record) bool { return r.UserID == userID }, at), nil
}

func (repository *memoryRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	kept := repository.records[:0]
	var removed int64
	for _, record := range repository.records {
		if record.RefreshExpiresAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	repository.records = kept
	return removed, nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

const (
	userID    = "0190f5e2-0000-7000-8000-00000000000a"
	sessionID = "5f1c7c2a9b8e4d3f2a1b0c9d8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a3b2c1d0e9f"
)

func newService(t *testing.T, clock *time.Time) (*credential.Service, *memoryRepository, *sec.TokenService) {
	t.Helper()
	signer, err := sec.NewTokenService("access-secret-for-tests", "refresh-secret-for-tests", "votegate-test")
	require.NoError(t, err)
	signer = signer.WithClock(func() time.Time { return *clock })

	repository := &memoryRepository{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := credential.NewService(repository, signer, passthroughTx{}, credential.Lifetimes{
		Access:  time.Hour,
		Refresh: 7 * 24 * time.Hour,
	}, logger).WithClock(func() time.Time { return *clock })

	return service, repository, signer
}

func codeOf(err error) string {
	if ae := apperr.As(err); ae != nil {
		return ae.Code
	}
	return ""
}

/*
TestService_IssueAndVerify verifies a fresh pair verifies under its own kind only.
*/
func TestService_IssueAndVerify(t *testing.T) {
	now := time.Now()
	service, repository, _ := newService(t, &now)
	ctx := context.Background()

	pair, err := service.Issue(ctx, userID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour).Unix(), pair.AccessExpiresAt.Unix())
	assert.Equal(t, now.Add(7*24*time.Hour).Unix(), pair.RefreshExpiresAt.Unix())

	// Only hashes are persisted.
	require.Len(t, repository.records, 1)
	assert.NotContains(t, repository.records[0].AccessTokenHash, pair.AccessToken)
	assert.Equal(t, sec.HashToken(pair.AccessToken), repository.records[0].AccessTokenHash)

	claims, err := service.Verify(ctx, pair.AccessToken, sec.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, sessionID, claims.SessionID)

	_, err = service.Verify(ctx, pair.RefreshToken, sec.KindRefresh)
	require.NoError(t, err)

	_, err = service.Verify(ctx, pair.AccessToken, sec.KindRefresh)
	require.Error(t, err)
	assert.Equal(t, 401, apperr.As(err).HTTPStatus)
}

/*
TestService_Verify_ConsultsRevocation verifies revoked tokens fail even with a valid signature.
*/
func TestService_Verify_ConsultsRevocation(t *testing.T) {
	now := time.Now()
	service, _, _ := newService(t, &now)
	ctx := context.Background()

	pair, err := service.Issue(ctx, userID, sessionID)
	require.NoError(t, err)

	revoked, err := service.RevokeSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), revoked)

	for _, kind := range []sec.TokenKind{sec.KindAccess, sec.KindRefresh} {
		token := pair.AccessToken
		if kind == sec.KindRefresh {
			token = pair.RefreshToken
		}
		_, err = service.Verify(ctx, token, kind)
		require.Error(t, err)
		assert.Equal(t, "TOKEN_REVOKED", codeOf(err))
	}
}

/*
TestService_Verify_UnknownRecord verifies a correctly signed token without a record is rejected.
*/
func TestService_Verify_UnknownRecord(t *testing.T) {
	now := time.Now()
	service, _, signer := newService(t, &now)

	forged, _, err := signer.Generate(sec.KindAccess, userID, sessionID, time.Hour)
	require.NoError(t, err)

	_, err = service.VerifyAccess(context.Background(), forged)
	require.Error(t, err)
	assert.Equal(t, "TOKEN_UNKNOWN", codeOf(err))
}

/*
TestService_Verify_Expiry verifies the access token expires independently of the refresh token.
*/
func TestService_Verify_Expiry(t *testing.T) {
	now := time.Now()
	service, _, _ := newService(t, &now)
	ctx := context.Background()

	pair, err := service.Issue(ctx, userID, sessionID)
	require.NoError(t, err)

	now = now.Add(61 * time.Minute)

	_, err = service.VerifyAccess(ctx, pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, "TOKEN_INVALID", codeOf(err))

	_, err = service.Verify(ctx, pair.RefreshToken, sec.KindRefresh)
	assert.NoError(t, err)
}

/*
TestService_Refresh_RotatesOnce verifies a refresh token can be exchanged only once.
*/
func TestService_Refresh_RotatesOnce(t *testing.T) {
	now := time.Now()
	service, _, _ := newService(t, &now)
	ctx := context.Background()

	original, err := service.Issue(ctx, userID, sessionID)
	require.NoError(t, err)

	rotated, err := service.Refresh(ctx, original.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, original.RefreshToken, rotated.RefreshToken)

	_, err = service.Refresh(ctx, original.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, "TOKEN_REVOKED", codeOf(err))

	// The old access token died with its record; the new one is live.
	_, err = service.VerifyAccess(ctx, original.AccessToken)
	assert.Equal(t, "TOKEN_REVOKED", codeOf(err))

	claims, err := service.VerifyAccess(ctx, rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)
}

/*
TestService_RevokeUser verifies revocation across every session of a user.
*/
func TestService_RevokeUser(t *testing.T) {
	now := time.Now()
	service, _, _ := newService(t, &now)
	ctx := context.Background()

	first, err := service.Issue(ctx, userID, sessionID)
	require.NoError(t, err)
	second, err := service.Issue(ctx, userID, "another-session")
	require.NoError(t, err)

	count, err := service.RevokeUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for _, token := range []string{first.AccessToken, second.AccessToken} {
		_, err := service.VerifyAccess(ctx, token)
		assert.Equal(t, "TOKEN_REVOKED", codeOf(err))
	}
}

/*
TestService_PurgeExpired verifies only records past their refresh expiry are removed.
*/
func TestService_PurgeExpired(t *testing.T) {
	now := time.Now()
	service, repository, _ := newService(t, &now)
	ctx := context.Background()

	_, err := service.Issue(ctx, userID, sessionID)
	require.NoError(t, err)

	removed, err := service.PurgeExpired(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	now = now.Add(8 * 24 * time.Hour)
	removed, err = service.PurgeExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Empty(t, repository.records)
}
