// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token signing.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, random material, JWT
// signing) from the domain logic. It knows nothing about sessions or revocation;
// the credential package layers the revocation lookup on top of [TokenService].
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// # Token Kinds

// TokenKind distinguishes the two halves of a credential pair.
type TokenKind string

const (
	// KindAccess is the short-lived bearer token.
	KindAccess TokenKind = "access"

	// KindRefresh is the long-lived token exchanged for a new pair.
	KindRefresh TokenKind = "refresh"
)

// ErrKindMismatch is returned when a token of one kind is presented as the other.
var ErrKindMismatch = errors.New("sec: token kind mismatch")

// AuthClaims represents the payload embedded inside every issued token.
//
// Claims are abbreviated to keep the JWT small; the session id binds the token
// to exactly one authentication session so it can be revoked with it.
type AuthClaims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"uid"`
	SessionID string    `json:"sid"`
	Kind      TokenKind `json:"typ"`
}

// TokenService signs and parses HS256 tokens with one secret per kind, so a
// refresh token can never validate as an access token even with the kind claim forged.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	now           func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(accessSecret, refreshSecret, issuer string) (*TokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("sec: token secrets must not be empty")
	}

	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		now:           time.Now,
	}, nil
}

// WithClock returns a copy of the service that reads time from now. Used by tests.
func (service *TokenService) WithClock(now func() time.Time) *TokenService {
	clone := *service
	clone.now = now
	return &clone
}

// Generate signs a token of the given kind bound to (userID, sessionID).
//
// # Returns
//   - The signed token and its expiry.
func (service *TokenService) Generate(kind TokenKind, userID, sessionID string, timeToLive time.Duration) (string, time.Time, error) {
	secret, err := service.secretFor(kind)
	if err != nil {
		return "", time.Time{}, err
	}

	currentTime := service.now()
	expiresAt := currentTime.Add(timeToLive)

	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:    userID,
		SessionID: sessionID,
		Kind:      kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// Parse checks signature, issuer, expiry and kind of a token string.
//
// It does not know about revocation. Callers outside the credential package
// must not use it to authorize requests.
func (service *TokenService) Parse(tokenString string, kind TokenKind) (*AuthClaims, error) {
	secret, err := service.secretFor(kind)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(service.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(service.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid token claims")
	}

	if claims.Kind != kind {
		return nil, ErrKindMismatch
	}

	return claims, nil
}

// secretFor selects the signing key for a token kind.
func (service *TokenService) secretFor(kind TokenKind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return service.accessSecret, nil
	case KindRefresh:
		return service.refreshSecret, nil
	default:
		return nil, fmt.Errorf("sec: unknown token kind %q", kind)
	}
}
