// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/postgres"
	"github.com/taibuivan/votegate/internal/platform/sec"
	"github.com/taibuivan/votegate/pkg/uuid"
)

// # Contracts & Types

// Signer mints and parses signed tokens. Implemented by [sec.TokenService].
type Signer interface {
	Generate(kind sec.TokenKind, userID, sessionID string, timeToLive time.Duration) (string, time.Time, error)
	Parse(token string, kind sec.TokenKind) (*sec.AuthClaims, error)
}

// Lifetimes holds the independent expiries of the two token kinds.
type Lifetimes struct {
	Access  time.Duration
	Refresh time.Duration
}

// Service is the Credential Issuer.
type Service struct {
	repository Repository
	signer     Signer
	transactor postgres.Transactor
	lifetimes  Lifetimes
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a new credential [Service].
func NewService(repository Repository, signer Signer, transactor postgres.Transactor, lifetimes Lifetimes, logger *slog.Logger) *Service {
	return &Service{
		repository: repository,
		signer:     signer,
		transactor: transactor,
		lifetimes:  lifetimes,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock returns a copy of the service reading time from now.
func (service *Service) WithClock(now func() time.Time) *Service {
	clone := *service
	clone.now = now
	return &clone
}

// # Issuance

/*
Issue mints an access/refresh pair bound to (userID, sessionID) and persists its record.

Runs inside the caller's transaction when there is one, so a failed issuance
rolls back the session completion that triggered it.
*/
func (service *Service) Issue(context context.Context, userID, sessionID string) (*Pair, error) {
	accessToken, accessExpiresAt, err := service.signer.Generate(sec.KindAccess, userID, sessionID, service.lifetimes.Access)
	if err != nil {
		return nil, fmt.Errorf("credential_service_access_token_failed: %w", err)
	}

	refreshToken, refreshExpiresAt, err := service.signer.Generate(sec.KindRefresh, userID, sessionID, service.lifetimes.Refresh)
	if err != nil {
		return nil, fmt.Errorf("credential_service_refresh_token_failed: %w", err)
	}

	record := &Record{
		ID:               uuid.New(),
		UserID:           userID,
		SessionID:        sessionID,
		AccessTokenHash:  sec.HashToken(accessToken),
		RefreshTokenHash: sec.HashToken(refreshToken),
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		CreatedAt:        service.now(),
	}

	if err := service.repository.Create(context, record); err != nil {
		return nil, fmt.Errorf("credential_service_record_failed: %w", err)
	}

	service.logger.InfoContext(context, "credentials_issued",
		slog.String("user_id", userID),
		slog.String("credential_id", record.ID),
	)

	return &Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		TokenType:        "Bearer",
	}, nil
}

// # Verification

/*
Verify checks signature, kind, expiry and the revocation record of a token.

Returns:
  - *sec.AuthClaims: Claims of a live token
  - error: apperr.Unauthorized for any failure (the reason is in the code only)
*/
func (service *Service) Verify(context context.Context, token string, kind sec.TokenKind) (*sec.AuthClaims, error) {
	claims, _, err := service.verify(context, token, kind)
	return claims, err
}

// VerifyAccess implements middleware.TokenVerifier.
func (service *Service) VerifyAccess(context context.Context, token string) (*sec.AuthClaims, error) {
	return service.Verify(context, token, sec.KindAccess)
}

func (service *Service) verify(context context.Context, token string, kind sec.TokenKind) (*sec.AuthClaims, *Record, error) {
	if token == "" {
		return nil, nil, apperr.Unauthorized("Missing token").WithCode("TOKEN_MISSING")
	}

	claims, err := service.signer.Parse(token, kind)
	if err != nil {
		if errors.Is(err, sec.ErrKindMismatch) {
			return nil, nil, apperr.Unauthorized("Invalid token").WithCode("TOKEN_KIND_MISMATCH")
		}
		return nil, nil, apperr.Unauthorized("Invalid or expired token").WithCode("TOKEN_INVALID")
	}

	record, err := service.repository.FindByTokenHash(context, kind, sec.HashToken(token))
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, nil, apperr.Unauthorized("Unknown token").WithCode("TOKEN_UNKNOWN")
		}
		return nil, nil, fmt.Errorf("credential_service_lookup_failed: %w", err)
	}

	if record.IsRevoked {
		return nil, nil, apperr.Unauthorized("Token has been revoked").WithCode("TOKEN_REVOKED")
	}

	// The record must agree with the claims it was issued for.
	if record.UserID != claims.UserID || record.SessionID != claims.SessionID {
		return nil, nil, apperr.Unauthorized("Invalid token").WithCode("TOKEN_INVALID")
	}

	return claims, record, nil
}

// # Rotation

/*
Refresh exchanges a live refresh token for a new pair and revokes the old record.

Both writes share one transaction; a refresh token can be exchanged at most once.
*/
func (service *Service) Refresh(ctx context.Context, refreshToken string) (*Pair, error) {
	var pair *Pair

	err := service.transactor.WithinTx(ctx, func(ctx context.Context) error {
		claims, record, err := service.verify(ctx, refreshToken, sec.KindRefresh)
		if err != nil {
			return err
		}

		revoked, err := service.repository.RevokeByID(ctx, record.ID, service.now())
		if err != nil {
			return fmt.Errorf("credential_service_rotate_revoke_failed: %w", err)
		}
		if !revoked {
			return apperr.Unauthorized("Token has been revoked").WithCode("TOKEN_REVOKED")
		}

		pair, err = service.Issue(ctx, claims.UserID, claims.SessionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

// # Revocation

// RevokeSession revokes every record bound to a session.
func (service *Service) RevokeSession(context context.Context, sessionID string) (int64, error) {
	count, err := service.repository.RevokeBySession(context, sessionID, service.now())
	if err != nil {
		return 0, fmt.Errorf("credential_service_revoke_session_failed: %w", err)
	}
	return count, nil
}

// RevokeUser revokes every record of a user.
func (service *Service) RevokeUser(context context.Context, userID string) (int64, error) {
	count, err := service.repository.RevokeByUser(context, userID, service.now())
	if err != nil {
		return 0, fmt.Errorf("credential_service_revoke_user_failed: %w", err)
	}
	return count, nil
}

// PurgeExpired deletes records whose refresh token expired more than grace ago.
func (service *Service) PurgeExpired(context context.Context, grace time.Duration) (int64, error) {
	count, err := service.repository.DeleteExpired(context, service.now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("credential_service_purge_failed: %w", err)
	}

	service.logger.InfoContext(context, "credentials_purged", slog.Int64("count", count))
	return count, nil
}
