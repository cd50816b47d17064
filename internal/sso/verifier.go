// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sso

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReplayGuard claims an assertion key so it can be consumed only once.
type ReplayGuard interface {
	// Claim returns false when key was already claimed. The claim lives for ttl.
	Claim(context context.Context, key string, ttl time.Duration) (bool, error)
}

// Verifier checks assertions against the shared secret.
type Verifier struct {
	secret []byte
	skew   time.Duration
	guard  ReplayGuard
	now    func() time.Time
}

// NewVerifier creates a verifier. skew is tolerated past an assertion's exp.
func NewVerifier(sharedSecret string, skew time.Duration, guard ReplayGuard) (*Verifier, error) {
	if sharedSecret == "" {
		return nil, fmt.Errorf("sso: shared secret must not be empty")
	}
	return &Verifier{
		secret: []byte(sharedSecret),
		skew:   skew,
		guard:  guard,
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of the verifier reading time from now.
func (verifier *Verifier) WithClock(now func() time.Time) *Verifier {
	clone := *verifier
	clone.now = now
	return &clone
}

/*
Verify checks an assertion without consuming it.

Checks run in order: shape, signature, payload decoding, expiry. The first
failure decides the reason.

Returns:
  - *Assertion: The decoded assertion
  - error: apperr.Unauthorized with a SSO_* reason code
*/
func (verifier *Verifier) Verify(raw string) (*Assertion, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, reject(ErrMalformedToken)
	}
	payload, signature := parts[0], strings.ToLower(parts[1])

	if !hmac.Equal([]byte(verifier.sign(payload)), []byte(signature)) {
		return nil, reject(ErrInvalidSignature)
	}

	decoded, err := decodeBase64(payload)
	if err != nil {
		return nil, reject(ErrMalformedPayload)
	}

	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return nil, reject(ErrMalformedPayload)
	}

	// A missing exp is treated as already expired.
	if claims.ExpiresAt <= 0 || verifier.now().After(time.Unix(claims.ExpiresAt, 0).Add(verifier.skew)) {
		return nil, reject(ErrExpired)
	}

	return claims.assertion(signature), nil
}

/*
Consume verifies an assertion and claims it in the replay guard.

A second Consume of the same assertion fails with SSO_REPLAYED for as long as
the assertion itself would be valid.
*/
func (verifier *Verifier) Consume(context context.Context, raw string) (*Assertion, error) {
	assertion, err := verifier.Verify(raw)
	if err != nil {
		return nil, err
	}

	ttl := assertion.ExpiresAt.Add(verifier.skew).Sub(verifier.now())
	if ttl < time.Second {
		ttl = time.Second
	}

	claimed, err := verifier.guard.Claim(context, assertion.replayKey, ttl)
	if err != nil {
		return nil, fmt.Errorf("sso_verifier_replay_guard_failed: %w", err)
	}
	if !claimed {
		return nil, reject(ErrReplayed)
	}

	return assertion, nil
}

/*
Sign produces an assertion for claims with the shared secret.

Used by the operator CLI and tests to mint assertions the way the partner does.
*/
func (verifier *Verifier) Sign(claims Claims) (string, error) {
	encoded, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("sso: failed to encode claims: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(encoded)
	return payload + "." + verifier.sign(payload), nil
}

// sign returns the lowercase hex HMAC-SHA256 of the encoded payload.
func (verifier *Verifier) sign(payload string) string {
	mac := hmac.New(sha256.New, verifier.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// decodeBase64 accepts padded or raw, standard or URL-safe encodings.
func decodeBase64(value string) ([]byte, error) {
	var lastErr error
	for _, encoding := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		decoded, err := encoding.DecodeString(value)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
