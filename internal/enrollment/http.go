// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package enrollment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/votegate/internal/identity"
	"github.com/taibuivan/votegate/internal/platform/constants"
	"github.com/taibuivan/votegate/internal/platform/middleware"
	requestutil "github.com/taibuivan/votegate/internal/platform/request"
	"github.com/taibuivan/votegate/internal/platform/respond"
	"github.com/taibuivan/votegate/internal/platform/validate"
)

const fieldSessionID = "sessionId"

// Handler exposes enrollment steps over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the enrollment router.
//
// # Endpoints
//   - POST /profile                       : Records profile details.
//   - GET  /profile/{sessionId}           : Returns the stored profile details.
//   - POST /biometric                     : Enrolls a biometric, returns backup codes once.
//   - POST /biometric/verify              : Matches a biometric template.
//   - GET  /security-questions/{sessionId}: Draws questions for the session.
//   - POST /security-questions            : Records hashed answers.
//   - POST /security-questions/verify     : Checks answers against the stored hashes.
//   - POST /backup-codes/redeem           : Consumes one backup code.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/profile", handler.recordProfile)
	router.Get("/profile/{sessionId}", handler.profile)

	router.Post("/biometric", handler.recordBiometric)
	router.Post("/biometric/verify", handler.verifyBiometric)

	router.Get("/security-questions/{sessionId}", handler.questions)
	router.Post("/security-questions", handler.recordAnswers)
	router.Post("/security-questions/verify", handler.verifyAnswers)

	router.Post("/backup-codes/redeem", handler.redeemBackupCode)

	return router
}

// # Request Payloads

type profileRequest struct {
	SessionID string `json:"sessionId"`
	identity.ProfileFields
}

type biometricRequest struct {
	SessionID    string      `json:"sessionId"`
	Type         string      `json:"biometricType"`
	Template     string      `json:"biometricData"`
	QualityScore *int        `json:"qualityScore"`
	Device       DeviceInput `json:"deviceInfo"`
}

type answersRequest struct {
	SessionID string   `json:"sessionId"`
	Answers   []Answer `json:"answers"`
}

type backupCodeRequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

// decodeSession decodes the body and checks the session id format.
func decodeSession(request *http.Request, target any, sessionID func() string) error {
	if err := requestutil.DecodeJSON(request, target); err != nil {
		return err
	}

	validator := &validate.Validator{}
	validator.SessionID(fieldSessionID, sessionID())
	return validator.Err()
}

/*
POST /api/v1/enrollment/profile

Request:
  - Body: profileRequest (sessionId plus profile fields)

Response:
  - 200: StepResult
  - 400: Missing or invalid fields
  - 403: Session is not a first-time session
*/
func (handler *Handler) recordProfile(writer http.ResponseWriter, request *http.Request) {
	var input profileRequest
	if err := decodeSession(request, &input, func() string { return input.SessionID }); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.RecordProfile(request.Context(), ProfileInput{
		SessionID: input.SessionID,
		Fields:    input.ProfileFields,
		IPAddress: middleware.RealIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// GET /api/v1/enrollment/profile/{sessionId}
func (handler *Handler) profile(writer http.ResponseWriter, request *http.Request) {
	sessionID := requestutil.ID(request, fieldSessionID)

	validator := &validate.Validator{}
	if err := validator.SessionID(fieldSessionID, sessionID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	details, err := handler.service.Profile(request.Context(), sessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, details)
}

/*
POST /api/v1/enrollment/biometric

Response:
  - 200: BiometricResult (backupCodes are shown only in this response)
  - 400: Unsupported type or empty template
  - 403: Session is not a first-time session
*/
func (handler *Handler) recordBiometric(writer http.ResponseWriter, request *http.Request) {
	var input biometricRequest
	if err := decodeSession(request, &input, func() string { return input.SessionID }); err != nil {
		respond.Error(writer, request, err)
		return
	}

	device := input.Device
	if device.DeviceID == "" {
		device.DeviceID = request.Header.Get(constants.HeaderDeviceID)
	}

	result, err := handler.service.RecordBiometric(request.Context(), BiometricInput{
		SessionID:    input.SessionID,
		Type:         BiometricType(input.Type),
		Template:     input.Template,
		QualityScore: input.QualityScore,
		Device:       device,
		IPAddress:    middleware.RealIP(request),
		UserAgent:    request.UserAgent(),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// POST /api/v1/enrollment/biometric/verify
func (handler *Handler) verifyBiometric(writer http.ResponseWriter, request *http.Request) {
	var input biometricRequest
	if err := decodeSession(request, &input, func() string { return input.SessionID }); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err := handler.service.VerifyBiometric(request.Context(), BiometricCheckInput{
		SessionID: input.SessionID,
		Type:      BiometricType(input.Type),
		Template:  input.Template,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]bool{"verified": true})
}

// GET /api/v1/enrollment/security-questions/{sessionId}
func (handler *Handler) questions(writer http.ResponseWriter, request *http.Request) {
	sessionID := requestutil.ID(request, fieldSessionID)

	validator := &validate.Validator{}
	if err := validator.SessionID(fieldSessionID, sessionID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	questions, err := handler.service.Questions(request.Context(), sessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"questions": questions})
}

// POST /api/v1/enrollment/security-questions
func (handler *Handler) recordAnswers(writer http.ResponseWriter, request *http.Request) {
	var input answersRequest
	if err := decodeSession(request, &input, func() string { return input.SessionID }); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.RecordSecurityAnswers(request.Context(), AnswersInput{
		SessionID: input.SessionID,
		Answers:   input.Answers,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

/*
POST /api/v1/enrollment/security-questions/verify

Response:
  - 200: AnswerCheck with verified=true
  - 401: AnswerCheck with verified=false
*/
func (handler *Handler) verifyAnswers(writer http.ResponseWriter, request *http.Request) {
	var input answersRequest
	if err := decodeSession(request, &input, func() string { return input.SessionID }); err != nil {
		respond.Error(writer, request, err)
		return
	}

	check, err := handler.service.VerifyAnswers(request.Context(), input.SessionID, input.Answers)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if !check.Verified {
		respond.JSON(writer, http.StatusUnauthorized, respond.SuccessEnvelope{Data: check})
		return
	}
	respond.OK(writer, check)
}

// POST /api/v1/enrollment/backup-codes/redeem
func (handler *Handler) redeemBackupCode(writer http.ResponseWriter, request *http.Request) {
	var input backupCodeRequest
	if err := decodeSession(request, &input, func() string { return input.SessionID }); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.RedeemBackupCode(request.Context(), input.SessionID, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}
