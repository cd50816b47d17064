// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package credential issues and revokes the access/refresh token pair bound to a
completed authentication session.

Every issued pair has a server-side record keyed by the SHA-256 of each token.
A token is valid only while it is unexpired AND its record is not revoked; the
record is consulted on every verification, there is no signature-only path.
*/
package credential

import "time"

// Record is the server-side trace of one issued pair.
type Record struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	SessionID        string     `json:"sessionId"`
	AccessTokenHash  string     `json:"-"`
	RefreshTokenHash string     `json:"-"`
	AccessExpiresAt  time.Time  `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time  `json:"refreshExpiresAt"`
	IsRevoked        bool       `json:"isRevoked"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Pair is returned to the client exactly once, at issuance.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	TokenType        string    `json:"tokenType"`
}
