// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package sso verifies assertions signed by the partner community platform.

An assertion is "<base64(json)>.<hex(hmac-sha256(base64 part))>". The payload
describes the user and is consumed exactly once: its nonce is claimed in Redis
until the assertion would have expired anyway.

# Rejection Reasons

	SSO_MALFORMED_TOKEN    not two dot-separated parts
	SSO_INVALID_SIGNATURE  HMAC mismatch
	SSO_MALFORMED_PAYLOAD  base64 or JSON decoding failed
	SSO_EXPIRED            exp missing or in the past
	SSO_REPLAYED           nonce already consumed
*/
package sso

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/taibuivan/votegate/internal/identity"
	"github.com/taibuivan/votegate/internal/platform/apperr"
)

// # Rejections

var (
	ErrMalformedToken   = errors.New("sso: malformed token")
	ErrInvalidSignature = errors.New("sso: invalid signature")
	ErrMalformedPayload = errors.New("sso: malformed payload")
	ErrExpired          = errors.New("sso: assertion expired")
	ErrReplayed         = errors.New("sso: assertion already used")
)

var reasonCodes = map[error]string{
	ErrMalformedToken:   "SSO_MALFORMED_TOKEN",
	ErrInvalidSignature: "SSO_INVALID_SIGNATURE",
	ErrMalformedPayload: "SSO_MALFORMED_PAYLOAD",
	ErrExpired:          "SSO_EXPIRED",
	ErrReplayed:         "SSO_REPLAYED",
}

var reasonMessages = map[error]string{
	ErrMalformedToken:   "Invalid token format",
	ErrInvalidSignature: "Token verification failed, please sign in through the community first",
	ErrMalformedPayload: "Token payload could not be read",
	ErrExpired:          "Your sign-in has expired, please sign in through the community again",
	ErrReplayed:         "This sign-in link has already been used",
}

// reject wraps a sentinel into a 401 carrying its reason code.
func reject(reason error) error {
	return apperr.Unauthorized(reasonMessages[reason]).WithCode(reasonCodes[reason]).WithCause(reason)
}

// ReasonCode extracts the rejection reason code from a Verify error.
func ReasonCode(err error) string {
	for reason, code := range reasonCodes {
		if errors.Is(err, reason) {
			return code
		}
	}
	return ""
}

// # Wire Payload

// Claims is the JSON payload of an assertion as produced by the partner platform.
type Claims struct {
	UserID    FlexString `json:"user_id"`
	Username  string     `json:"username,omitempty"`
	Email     string     `json:"user_email,omitempty"`
	FirstName string     `json:"user_firstname,omitempty"`
	LastName  string     `json:"user_lastname,omitempty"`
	OrgMember string     `json:"org_member,omitempty"`
	Country   string     `json:"user_country,omitempty"`
	Age       FlexInt    `json:"user_age,omitempty"`
	Gender    string     `json:"user_gender,omitempty"`
	IssuedAt  int64      `json:"iat,omitempty"`
	ExpiresAt int64      `json:"exp,omitempty"`
	Nonce     string     `json:"nonce,omitempty"`
}

// FlexString accepts a JSON string or number; partner user ids arrive as either.
type FlexString string

func (value *FlexString) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*value = FlexString(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*value = FlexString(number.String())
	return nil
}

// FlexInt accepts a JSON number, a numeric string, an empty string or null.
type FlexInt struct {
	Value int
	Valid bool
}

// Age returns a present FlexInt.
func Age(value int) FlexInt {
	return FlexInt{Value: value, Valid: true}
}

func (value *FlexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*value = FlexInt{}
		return nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*value = FlexInt{Value: parsed, Valid: true}
	return nil
}

func (value FlexInt) MarshalJSON() ([]byte, error) {
	if !value.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(value.Value)), nil
}

// # Domain Assertion

// Assertion is a verified, decoded SSO assertion.
type Assertion struct {
	Subject   string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	OrgMember bool      `json:"orgMember"`
	Country   string    `json:"country,omitempty"`
	Age       *int      `json:"age,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Nonce     string    `json:"-"`

	// replayKey identifies the assertion for the replay guard.
	replayKey string
}

func (claims *Claims) assertion(signature string) *Assertion {
	assertion := &Assertion{
		Subject:   strings.TrimSpace(string(claims.UserID)),
		Username:  claims.Username,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		OrgMember: strings.EqualFold(claims.OrgMember, "yes"),
		Country:   claims.Country,
		Gender:    claims.Gender,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0),
		Nonce:     claims.Nonce,
		replayKey: claims.Nonce,
	}
	if claims.IssuedAt > 0 {
		assertion.IssuedAt = time.Unix(claims.IssuedAt, 0)
	}
	if claims.Age.Valid {
		age := claims.Age.Value
		assertion.Age = &age
	}
	// Assertions without a nonce are still consumed once, keyed by the
	// lowercase signature.
	if assertion.replayKey == "" {
		assertion.replayKey = "sig:" + signature
	}
	return assertion
}

// ExternalIdentity converts the assertion into the identity resolver's input.
func (assertion *Assertion) ExternalIdentity() identity.ExternalIdentity {
	return identity.ExternalIdentity{
		Subject:   assertion.Subject,
		Email:     assertion.Email,
		Username:  assertion.Username,
		FirstName: assertion.FirstName,
		LastName:  assertion.LastName,
		Country:   assertion.Country,
		Gender:    assertion.Gender,
		Age:       assertion.Age,
	}
}

// ProfileFields returns the assertion attributes usable to pre-fill a profile.
func (assertion *Assertion) ProfileFields() identity.ProfileFields {
	return identity.ProfileFields{
		FirstName: assertion.FirstName,
		LastName:  assertion.LastName,
		Age:       assertion.Age,
		Gender:    assertion.Gender,
		Country:   assertion.Country,
	}
}
