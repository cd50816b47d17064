// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SendGridConfig configures [SendGrid].
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	BaseURL   string
}

// SendGrid delivers email codes through the SendGrid v3 mail API.
type SendGrid struct {
	config SendGridConfig
	client *http.Client
}

// NewSendGrid creates an email notifier.
func NewSendGrid(config SendGridConfig, client *http.Client) *SendGrid {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &SendGrid{config: config, client: client}
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridMail struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// Send posts one verification email.
func (notifier *SendGrid) Send(context context.Context, message Message) error {
	mail := sendGridMail{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: message.Destination}}}},
		From:             sendGridAddress{Email: notifier.config.FromEmail},
		Subject:          "Your Vottery Email Verification Code",
		Content: []sendGridContent{
			{
				Type:  "text/plain",
				Value: fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", message.Code, minutes(message.ExpiresIn)),
			},
			{
				Type: "text/html",
				Value: fmt.Sprintf(
					"<h2>Email Verification</h2><p>Your verification code is:</p><h1>%s</h1><p>This code expires in %d minutes.</p>",
					message.Code, minutes(message.ExpiresIn),
				),
			},
		},
	}

	body, err := json.Marshal(mail)
	if err != nil {
		return fmt.Errorf("notify: sendgrid encode failed: %w", err)
	}

	request, err := http.NewRequestWithContext(context, http.MethodPost, notifier.config.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: sendgrid request failed: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+notifier.config.APIKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := notifier.client.Do(request)
	if err != nil {
		return fmt.Errorf("notify: sendgrid call failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return &ProviderError{Provider: "sendgrid", StatusCode: response.StatusCode, Body: truncate(raw)}
	}

	return nil
}
