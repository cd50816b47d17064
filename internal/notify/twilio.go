// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// TwilioConfig configures [TwilioSMS] and [TwilioVerify].
type TwilioConfig struct {
	AccountSID       string
	AuthToken        string
	PhoneNumber      string
	VerifyServiceSID string
	APIBaseURL       string
	VerifyBaseURL    string
}

// twilioClient posts form-encoded requests with basic auth.
type twilioClient struct {
	accountSID string
	authToken  string
	client     *http.Client
}

func (twilio *twilioClient) post(context context.Context, endpoint string, form url.Values, target any) error {
	request, err := http.NewRequestWithContext(context, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: twilio request failed: %w", err)
	}
	request.SetBasicAuth(twilio.accountSID, twilio.authToken)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := twilio.client.Do(request)
	if err != nil {
		return fmt.Errorf("notify: twilio call failed: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("notify: twilio read failed: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &ProviderError{Provider: "twilio", StatusCode: response.StatusCode, Body: truncate(raw)}
	}

	if target != nil {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("notify: twilio decode failed: %w", err)
		}
	}
	return nil
}

// # Messaging

// TwilioSMS delivers SMS codes through the Twilio Messages API.
type TwilioSMS struct {
	twilio  twilioClient
	from    string
	baseURL string
}

// NewTwilioSMS creates an SMS notifier.
func NewTwilioSMS(config TwilioConfig, client *http.Client) *TwilioSMS {
	return &TwilioSMS{
		twilio:  twilioClient{accountSID: config.AccountSID, authToken: config.AuthToken, client: client},
		from:    config.PhoneNumber,
		baseURL: strings.TrimRight(config.APIBaseURL, "/"),
	}
}

// Send posts one SMS.
func (notifier *TwilioSMS) Send(context context.Context, message Message) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", notifier.baseURL, url.PathEscape(notifier.twilio.accountSID))

	form := url.Values{}
	form.Set("To", message.Destination)
	form.Set("From", notifier.from)
	form.Set("Body", fmt.Sprintf("Your Vottery verification code is: %s. This code expires in %d minutes.", message.Code, minutes(message.ExpiresIn)))

	return notifier.twilio.post(context, endpoint, form, nil)
}

// # Verify

// TwilioVerify delegates phone verification to Twilio Verify; Twilio owns the code.
type TwilioVerify struct {
	twilio     twilioClient
	serviceSID string
	baseURL    string
}

// NewTwilioVerify creates a delegated phone verifier.
func NewTwilioVerify(config TwilioConfig, client *http.Client) *TwilioVerify {
	return &TwilioVerify{
		twilio:     twilioClient{accountSID: config.AccountSID, authToken: config.AuthToken, client: client},
		serviceSID: config.VerifyServiceSID,
		baseURL:    strings.TrimRight(config.VerifyBaseURL, "/"),
	}
}

type verificationResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Start asks Twilio to send a code to phone.
//
// # Returns
//   - The provider's verification sid, stored as an opaque handle.
func (verifier *TwilioVerify) Start(context context.Context, phone string) (string, error) {
	endpoint := fmt.Sprintf("%s/v2/Services/%s/Verifications", verifier.baseURL, url.PathEscape(verifier.serviceSID))

	form := url.Values{}
	form.Set("To", phone)
	form.Set("Channel", "sms")

	var response verificationResponse
	if err := verifier.twilio.post(context, endpoint, form, &response); err != nil {
		return "", err
	}
	return response.SID, nil
}

// Check reports whether Twilio approves code for phone.
func (verifier *TwilioVerify) Check(context context.Context, phone, code string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v2/Services/%s/VerificationCheck", verifier.baseURL, url.PathEscape(verifier.serviceSID))

	form := url.Values{}
	form.Set("To", phone)
	form.Set("Code", code)

	var response verificationResponse
	if err := verifier.twilio.post(context, endpoint, form, &response); err != nil {
		// Twilio answers 404 once a verification expired or was approved.
		var providerError *ProviderError
		if errors.As(err, &providerError) && providerError.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return response.Status == "approved", nil
}
