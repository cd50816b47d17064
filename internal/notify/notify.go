// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package notify delivers one-time codes to users.

Each notifier speaks to a single provider over HTTPS: SendGrid for email,
Twilio Messaging for SMS, and Twilio Verify for delegated phone verification
where the provider owns the code. [LogNotifier] stands in when a provider is
not configured.
*/
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Message is one code delivery.
type Message struct {
	Destination string
	Code        string
	ExpiresIn   time.Duration
}

// ProviderError is returned when a provider answers with a non-success status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("notify: %s responded %d: %s", e.Provider, e.StatusCode, e.Body)
}

// # Development Notifier

// LogNotifier writes deliveries to the logger instead of sending them.
type LogNotifier struct {
	channel string
	logger  *slog.Logger
}

// NewLogNotifier creates a notifier that logs deliveries for channel.
func NewLogNotifier(channel string, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{channel: channel, logger: logger}
}

// Send logs the delivery with the destination masked.
func (notifier *LogNotifier) Send(context context.Context, message Message) error {
	notifier.logger.InfoContext(context, "otp_delivery_logged",
		slog.String("channel", notifier.channel),
		slog.String("destination", Mask(message.Destination)),
		slog.String("code", message.Code),
		slog.Duration("expires_in", message.ExpiresIn),
	)
	return nil
}

// # Helpers

/*
Mask hides most of a destination for logs and responses.

Example:

	Mask("ada@example.com") // "a**@example.com"
	Mask("+15550100999")    // "********0999"
*/
func Mask(destination string) string {
	if local, domain, found := strings.Cut(destination, "@"); found {
		if len(local) <= 1 {
			return local + "@" + domain
		}
		return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
	}

	if len(destination) <= 4 {
		return destination
	}
	return strings.Repeat("*", len(destination)-4) + destination[len(destination)-4:]
}

// minutes renders a duration as whole minutes for message bodies.
func minutes(duration time.Duration) int {
	m := int(duration.Round(time.Minute) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}

// truncate shortens provider bodies kept on errors.
func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
