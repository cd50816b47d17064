// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/taibuivan/votegate/internal/platform/request"
	"github.com/taibuivan/votegate/internal/platform/respond"
	"github.com/taibuivan/votegate/internal/platform/validate"
)

// Request field names reported in validation details.
const (
	FieldSessionID = "sessionId"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldChannel   = "channel"
	FieldCode      = "code"
)

// Accepted code lengths, covering local codes and provider-issued ones.
const (
	minCodeLength = 4
	maxCodeLength = 10
)

// Handler exposes the OTP engine over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the OTP router.
//
// # Endpoints
//   - POST /email  : Issues an email code.
//   - POST /sms    : Issues a phone code.
//   - POST /verify : Verifies a code and sets the session flag.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/email", handler.issueEmail)
	router.Post("/sms", handler.issueSMS)
	router.Post("/verify", handler.verify)

	return router
}

// # Request Payloads

type emailRequest struct {
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
}

type smsRequest struct {
	SessionID string `json:"sessionId"`
	Phone     string `json:"phone"`
}

type verifyRequest struct {
	SessionID string `json:"sessionId"`
	Channel   string `json:"channel"`
	Code      string `json:"code"`
}

/*
POST /api/v1/otp/email

Description: Issues a code to the given email address.

Request:
  - Body: emailRequest (SessionID, Email)

Response:
  - 200: IssueResult (delivered=false with deliveryError when the provider failed)
  - 400: Validation failure
  - 401/409: Session expired or closed
  - 429: Issue limit reached
*/
func (handler *Handler) issueEmail(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))

	validator := &validate.Validator{}
	validator.SessionID(FieldSessionID, input.SessionID).
		Required(FieldEmail, email).
		Email(FieldEmail, email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Issue(request.Context(), IssueInput{
		SessionID:   input.SessionID,
		Channel:     ChannelEmail,
		Destination: email,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

/*
POST /api/v1/otp/sms

Description: Issues a code to the given phone number, locally or through Twilio Verify.

Request:
  - Body: smsRequest (SessionID, Phone)

Response:
  - 200: IssueResult
  - 400: Validation failure
  - 429: Issue limit reached
*/
func (handler *Handler) issueSMS(writer http.ResponseWriter, request *http.Request) {
	var input smsRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.SessionID(FieldSessionID, input.SessionID).
		Required(FieldPhone, input.Phone).
		Phone(FieldPhone, input.Phone)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Issue(request.Context(), IssueInput{
		SessionID:   input.SessionID,
		Channel:     ChannelSMS,
		Destination: normalizePhone(input.Phone),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

/*
POST /api/v1/otp/verify

Description: Verifies a code for the session and channel.

Request:
  - Body: verifyRequest (SessionID, Channel, Code)

Response:
  - 200: VerifyResult {verified, sessionFlags, nextStep}
  - 400: OTP_EXPIRED, OTP_INVALID or validation failure
  - 404: OTP_NOT_FOUND
  - 429: OTP_TOO_MANY_ATTEMPTS
*/
func (handler *Handler) verify(writer http.ResponseWriter, request *http.Request) {
	var input verifyRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	code := strings.TrimSpace(input.Code)

	validator := &validate.Validator{}
	validator.SessionID(FieldSessionID, input.SessionID).
		OneOf(FieldChannel, input.Channel, string(ChannelEmail), string(ChannelSMS)).
		Numeric(FieldCode, code, minCodeLength, maxCodeLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Verify(request.Context(), VerifyInput{
		SessionID: input.SessionID,
		Channel:   Channel(input.Channel),
		Code:      code,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// normalizePhone strips formatting and ensures the E.164 leading plus.
func normalizePhone(phone string) string {
	stripped := validate.StripPhone(phone)
	if !strings.HasPrefix(stripped, "+") {
		stripped = "+" + stripped
	}
	return stripped
}
