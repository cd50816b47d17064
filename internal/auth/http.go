// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/constants"
	"github.com/taibuivan/votegate/internal/platform/middleware"
	requestutil "github.com/taibuivan/votegate/internal/platform/request"
	"github.com/taibuivan/votegate/internal/platform/respond"
	"github.com/taibuivan/votegate/internal/platform/validate"
	"github.com/taibuivan/votegate/internal/session"
	"github.com/taibuivan/votegate/internal/sso"
)

// Request field names reported in validation details.
const (
	FieldSessionID  = "sessionId"
	FieldEmail      = "email"
	FieldPhone      = "phone"
	FieldToken      = "token"
	FieldStepNumber = "stepNumber"
	FieldUserID     = "userId"
)

// # Definitions & Constructors

// Handler exposes the authentication flow over HTTP.
type Handler struct {
	authService *Service
	cookies     CookiePolicy

	// failureRedirect receives rejected browser SSO callbacks when set.
	failureRedirect string
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, cookies CookiePolicy, failureRedirect string) *Handler {
	return &Handler{authService: service, cookies: cookies, failureRedirect: failureRedirect}
}

// IdentityRoutes returns the direct-check router.
//
// # Endpoints
//   - POST /check : Resolves a user by email or phone and opens a session.
func (handler *Handler) IdentityRoutes() chi.Router {
	router := chi.NewRouter()
	router.Post("/check", handler.checkIdentity)
	return router
}

// SSORoutes returns the SSO router.
//
// # Endpoints
//   - GET  /callback : Browser redirect from the community platform.
//   - POST /callback : Form or API post from the community platform.
//   - POST /verify   : Checks a token without consuming it.
func (handler *Handler) SSORoutes() chi.Router {
	router := chi.NewRouter()
	router.Get("/callback", handler.ssoCallback)
	router.Post("/callback", handler.ssoCallback)
	router.Post("/verify", handler.ssoVerify)
	return router
}

// SessionRoutes returns the session router.
//
// # Endpoints
//   - GET  /{sessionId} : Session state and next step.
//   - POST /step        : Advances the step number.
//   - POST /complete    : Finalizes the session and sets credential cookies.
//   - POST /refresh     : Rotates the credential pair.
//   - POST /logout      : Revokes credentials and clears cookies.
//   - GET  /me          : Profile of the bearer (authenticated).
func (handler *Handler) SessionRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/step", handler.advanceStep)
	router.Post("/complete", handler.complete)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", handler.me)
	})

	router.Get("/{sessionId}", handler.getSession)

	return router
}

// # Request Payloads

type checkRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type stepRequest struct {
	SessionID  string `json:"sessionId"`
	StepNumber int    `json:"stepNumber"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// clientMeta captures the request metadata frozen onto a new session.
func clientMeta(request *http.Request) session.ClientMeta {
	return session.ClientMeta{
		IPAddress: middleware.RealIP(request),
		UserAgent: request.UserAgent(),
		DeviceID:  request.Header.Get(constants.HeaderDeviceID),
	}
}

/*
POST /api/v1/identity/check

Description: Looks the user up by email or phone and opens a direct-check session.

Request:
  - Body: checkRequest (Email and/or Phone)

Response:
  - 200: SessionStart
  - 400: Neither email nor phone given
  - 403: USER_BANNED
  - 404: USER_NOT_FOUND
*/
func (handler *Handler) checkIdentity(writer http.ResponseWriter, request *http.Request) {
	var input checkRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	phone := validate.StripPhone(input.Phone)

	validator := &validate.Validator{}
	validator.Custom(FieldEmail, email == "" && phone == "", "Email or phone is required")
	if email != "" {
		validator.Email(FieldEmail, email)
	}
	if phone != "" {
		validator.Phone(FieldPhone, phone)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	start, err := handler.authService.CheckIdentity(request.Context(), CheckInput{
		Email:  email,
		Phone:  phone,
		Client: clientMeta(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, start)
}

/*
GET|POST /api/v1/sso/callback

Description: Consumes an SSO assertion from the query string (GET) or body
(POST) and opens a pre-filled session. Rejected GET callbacks are redirected
to the failure URL when one is configured.

Response:
  - 200: SSOStart
  - 302: Rejected browser callback
  - 401: SSO_* rejection reason
*/
func (handler *Handler) ssoCallback(writer http.ResponseWriter, request *http.Request) {
	token := request.URL.Query().Get(FieldToken)
	if request.Method == http.MethodPost && token == "" {
		var input tokenRequest
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}
		token = input.Token
	}

	start, err := handler.authService.SSOCallback(request.Context(), token, clientMeta(request))
	if err != nil {
		if request.Method == http.MethodGet && handler.failureRedirect != "" {
			handler.redirectFailure(writer, request, err)
			return
		}
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, start)
}

// redirectFailure sends the browser back with ?error=<reason> in lower case.
func (handler *Handler) redirectFailure(writer http.ResponseWriter, request *http.Request, err error) {
	reason := sso.ReasonCode(err)
	if reason == "" {
		reason = "processing_error"
		if appError := apperr.As(err); appError != nil && appError.Code != "" {
			reason = appError.Code
		}
	}

	target, parseErr := url.Parse(handler.failureRedirect)
	if parseErr != nil {
		respond.Error(writer, request, err)
		return
	}

	query := target.Query()
	query.Set("error", strings.ToLower(reason))
	target.RawQuery = query.Encode()

	http.Redirect(writer, request, target.String(), http.StatusFound)
}

// POST /api/v1/sso/verify
func (handler *Handler) ssoVerify(writer http.ResponseWriter, request *http.Request) {
	var input tokenRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	if err := validator.Required(FieldToken, input.Token).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, handler.authService.CheckToken(input.Token))
}

// GET /api/v1/session/{sessionId}
func (handler *Handler) getSession(writer http.ResponseWriter, request *http.Request) {
	sessionID := requestutil.ID(request, FieldSessionID)

	validator := &validate.Validator{}
	if err := validator.SessionID(FieldSessionID, sessionID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	current, err := handler.authService.GetSession(request.Context(), sessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"session":  current,
		"nextStep": current.NextStep(),
	})
}

/*
POST /api/v1/session/step

Response:
  - 200: Session after the update
  - 409: INVALID_TRANSITION when the step would move backwards
*/
func (handler *Handler) advanceStep(writer http.ResponseWriter, request *http.Request) {
	var input stepRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.SessionID(FieldSessionID, input.SessionID).
		Range(FieldStepNumber, input.StepNumber, session.StepCheck, session.StepSecurityQuestionsAnswer)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	updated, err := handler.authService.AdvanceStep(request.Context(), input.SessionID, input.StepNumber)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, updated)
}

/*
POST /api/v1/session/complete

Description: Finalizes a session whose gate is met, returns the credentials
and sets the accessToken, refreshToken and sessionId cookies.

Response:
  - 200: Completion
  - 401: COMPLETION_GATE_UNMET with the missing steps, or SESSION_EXPIRED
  - 409: ALREADY_COMPLETED
*/
func (handler *Handler) complete(writer http.ResponseWriter, request *http.Request) {
	var input sessionRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	if err := validator.SessionID(FieldSessionID, input.SessionID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	completion, err := handler.authService.Complete(request.Context(), input.SessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.setCredentials(writer, completion.Credentials, completion.SessionID)
	respond.OK(writer, completion)
}

/*
POST /api/v1/session/refresh

Description: Rotates the pair. The refresh token is read from the cookie,
falling back to the JSON body.
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	token := cookieValue(request, constants.CookieRefreshToken)
	if token == "" {
		var input refreshRequest
		if err := requestutil.DecodeOptionalJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}
		token = input.RefreshToken
	}

	pair, err := handler.authService.Refresh(request.Context(), token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.setCredentials(writer, pair, "")
	respond.OK(writer, pair)
}

/*
POST /api/v1/session/logout

Description: Logs out by session id (body or cookie), user id, or bearer token.
Cookies are cleared on success.
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	var input logoutRequest
	if err := requestutil.DecodeOptionalJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if input.SessionID == "" {
		input.SessionID = cookieValue(request, constants.CookieSessionID)
	}

	validator := &validate.Validator{}
	if input.SessionID != "" {
		validator.SessionID(FieldSessionID, input.SessionID)
	}
	if input.UserID != "" {
		validator.UUID(FieldUserID, input.UserID)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	accessToken, _, _ := middleware.BearerToken(request)
	if accessToken == "" {
		accessToken = cookieValue(request, constants.CookieAccessToken)
	}

	result, err := handler.authService.Logout(request.Context(), LogoutInput{
		SessionID:   input.SessionID,
		UserID:      input.UserID,
		AccessToken: accessToken,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.clear(writer)
	respond.OK(writer, result)
}

// GET /api/v1/session/me
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	profile, err := handler.authService.Me(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, profile)
}
