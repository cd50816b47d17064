// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package otp issues and verifies one-time codes that prove control of an email
address or a phone number during an authentication session.

# Protocol

  - Issue: a uniformly random numeric code is stored hashed with an expiry and
    handed to the channel's notifier. Delivery failures are reported, never fatal.
  - Verify: only the most recent unused code of (session, channel) is considered.
    Checks run in order: expiry, attempt cap, comparison. A failed comparison
    increments the attempt counter atomically; a match consumes the code and
    sets the session flag in the same transaction.

The phone channel can delegate both halves to Twilio Verify, in which case the
provider owns the code and this package relays its answer.
*/
package otp

import (
	"fmt"
	"time"

	"github.com/taibuivan/votegate/internal/session"
)

// # Channel

// Channel is the medium a code is delivered through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether channel is supported.
func (channel Channel) Valid() bool {
	return channel == ChannelEmail || channel == ChannelSMS
}

// Flag returns the session flag proven by a verified code on channel.
func (channel Channel) Flag() session.Flag {
	if channel == ChannelSMS {
		return session.FlagSMSVerified
	}
	return session.FlagEmailVerified
}

// ParseChannel converts a request value into a [Channel].
func ParseChannel(value string) (Channel, error) {
	channel := Channel(value)
	if !channel.Valid() {
		return "", fmt.Errorf("otp: unknown channel %q", value)
	}
	return channel, nil
}

// # Provider

// Provider identifies who owns the code value.
type Provider string

const (
	// ProviderLocal codes are generated here and stored as SHA-256 hashes.
	ProviderLocal Provider = "local"

	// ProviderTwilioVerify codes live at Twilio; only the verification sid is stored.
	ProviderTwilioVerify Provider = "twilio_verify"
)

// # Domain Entity

// Code is one issued one-time code.
type Code struct {
	ID           string
	SessionID    string
	UserID       string
	Channel      Channel
	CodeHash     string
	Destination  string
	Provider     Provider
	ProviderRef  string
	ExpiresAt    time.Time
	IsUsed       bool
	AttemptCount int
	VerifiedAt   *time.Time
	CreatedAt    time.Time
}

// Expired reports whether the code is past its expiry at now. A code is still
// valid at the exact expiry instant.
func (code *Code) Expired(now time.Time) bool {
	return now.After(code.ExpiresAt)
}

// # Reason Codes

const (
	CodeNotFound        = "OTP_NOT_FOUND"
	CodeExpired         = "OTP_EXPIRED"
	CodeTooManyAttempts = "OTP_TOO_MANY_ATTEMPTS"
	CodeInvalid         = "OTP_INVALID"
	CodeAlreadyUsed     = "OTP_ALREADY_USED"
)
