// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/taibuivan/votegate/internal/credential"
	"github.com/taibuivan/votegate/internal/identity"
	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/postgres"
	"github.com/taibuivan/votegate/internal/platform/sec"
	"github.com/taibuivan/votegate/internal/session"
	"github.com/taibuivan/votegate/internal/sso"
	"github.com/taibuivan/votegate/pkg/slice"
)

// # Contracts & Types

// Identities is the part of the identity resolver the flow needs.
type Identities interface {
	ResolveByContact(context context.Context, email, phone string) (*identity.User, error)
	IsFirstTime(context context.Context, userID string) (bool, error)
	Reconcile(context context.Context, external identity.ExternalIdentity) (*identity.User, bool, error)
	FillProfile(context context.Context, userID, sessionID string, fields identity.ProfileFields, ip string) error
	AssignDefaultRole(context context.Context, userID, source string) error
	MarkActivated(context context.Context, userID string) error
	Details(context context.Context, userID string) (*identity.Details, error)
	Profile(context context.Context, userID string) (*identity.Profile, error)
}

// Sessions is the part of the session manager the flow needs.
type Sessions interface {
	Create(context context.Context, input session.CreateInput) (*session.Session, error)
	Get(context context.Context, id string) (*session.Session, error)
	AdvanceStep(context context.Context, id string, target int) (*session.Session, error)
	MarkPrefilled(context context.Context, id string) error
	EvaluateCompletionGate(context context.Context, id string) (*session.Gate, error)
	Complete(context context.Context, id string) error
	Terminate(context context.Context, id string) (*session.TerminateResult, error)
	TerminateUser(context context.Context, userID string) (*session.TerminateResult, error)
}

// Credentials is the part of the credential issuer the flow needs.
type Credentials interface {
	Issue(context context.Context, userID, sessionID string) (*credential.Pair, error)
	Refresh(context context.Context, refreshToken string) (*credential.Pair, error)
	VerifyAccess(context context.Context, token string) (*sec.AuthClaims, error)
}

// Assertions verifies SSO assertions.
type Assertions interface {
	Verify(raw string) (*sso.Assertion, error)
	Consume(context context.Context, raw string) (*sso.Assertion, error)
}

// Dependencies groups the collaborators of [NewService].
type Dependencies struct {
	Identities  Identities
	Sessions    Sessions
	Credentials Credentials
	Assertions  Assertions
	Transactor  postgres.Transactor
}

// Service runs the authentication flow.
type Service struct {
	identities  Identities
	sessions    Sessions
	credentials Credentials
	assertions  Assertions
	transactor  postgres.Transactor
	logger      *slog.Logger
}

// NewService constructs a new auth [Service].
func NewService(deps Dependencies, logger *slog.Logger) *Service {
	return &Service{
		identities:  deps.Identities,
		sessions:    deps.Sessions,
		credentials: deps.Credentials,
		assertions:  deps.Assertions,
		transactor:  deps.Transactor,
		logger:      logger,
	}
}

// # Direct Check

// CheckInput is the payload of [Service.CheckIdentity].
type CheckInput struct {
	Email  string
	Phone  string
	Client session.ClientMeta
}

/*
CheckIdentity resolves a user by email or phone and opens a direct-check session.

Returns:
  - *SessionStart: The new session and the first step to render
  - error: NotFound (USER_NOT_FOUND), Forbidden (USER_BANNED)
*/
func (service *Service) CheckIdentity(context context.Context, input CheckInput) (*SessionStart, error) {
	user, err := service.identities.ResolveByContact(context, input.Email, input.Phone)
	if err != nil {
		return nil, err
	}

	if err := identity.EnsureNotBanned(user); err != nil {
		service.logger.WarnContext(context, "auth_banned_user_rejected", slog.String("user_id", user.ID))
		return nil, err
	}

	firstTime, err := service.identities.IsFirstTime(context, user.ID)
	if err != nil {
		return nil, err
	}

	opened, err := service.sessions.Create(context, session.CreateInput{
		UserID:      user.ID,
		IsFirstTime: firstTime,
		Client:      input.Client,
		AuthMethod:  session.AuthMethodDirectCheck,
	})
	if err != nil {
		return nil, err
	}

	start := startFrom(opened)
	return &start, nil
}

// # SSO

/*
SSOCallback consumes an SSO assertion and opens a pre-filled session.

The user is reconciled (or auto-provisioned) before the transaction. Session
creation, the default role and, when the assertion carries any profile
attribute, the profile pre-fill and the prefilled mark commit together. A bare
assertion writes no profile, so the user stays first-time.
*/
func (service *Service) SSOCallback(ctx context.Context, token string, client session.ClientMeta) (*SSOStart, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.Unauthorized("Missing sign-in token").WithCode("SSO_MALFORMED_TOKEN")
	}

	assertion, err := service.assertions.Consume(ctx, token)
	if err != nil {
		service.logger.WarnContext(ctx, "sso_assertion_rejected",
			slog.String("reason", sso.ReasonCode(err)),
			slog.String("ip", client.IPAddress),
		)
		return nil, err
	}

	user, isNew, err := service.identities.Reconcile(ctx, assertion.ExternalIdentity())
	if err != nil {
		return nil, err
	}

	if err := identity.EnsureNotBanned(user); err != nil {
		service.logger.WarnContext(ctx, "auth_banned_user_rejected", slog.String("user_id", user.ID))
		return nil, err
	}

	firstTime, err := service.identities.IsFirstTime(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	fields := assertion.ProfileFields()
	prefilled := !fields.IsEmpty()

	var opened *session.Session
	err = service.transactor.WithinTx(ctx, func(ctx context.Context) error {
		opened, err = service.sessions.Create(ctx, session.CreateInput{
			UserID:          user.ID,
			IsFirstTime:     firstTime,
			Client:          client,
			AuthMethod:      session.AuthMethodSSOAssertion,
			ExternalSubject: assertion.Subject,
		})
		if err != nil {
			return err
		}

		if err := service.identities.AssignDefaultRole(ctx, user.ID, identity.RoleSourceSSO); err != nil {
			return err
		}
		if !prefilled {
			return nil
		}

		if err := service.identities.FillProfile(ctx, user.ID, opened.ID, fields, client.IPAddress); err != nil {
			return err
		}
		return service.sessions.MarkPrefilled(ctx, opened.ID)
	})
	if err != nil {
		return nil, err
	}
	opened.Prefilled = prefilled

	details, err := service.identities.Details(ctx, user.ID)
	if err != nil && !apperr.IsNotFound(err) {
		return nil, err
	}

	service.logger.InfoContext(ctx, "sso_session_opened",
		slog.String("user_id", user.ID),
		slog.Bool("is_new_user", isNew),
		slog.Bool("is_first_time", firstTime),
	)

	message := "Welcome back"
	if isNew {
		message = "Account created from your community profile"
	}

	return &SSOStart{
		SessionStart: startFrom(opened),
		IsNewUser:    isNew,
		PrefillData:  prefillFrom(details, assertion),
		Message:      message,
	}, nil
}

// CheckToken verifies an SSO assertion without consuming it.
func (service *Service) CheckToken(token string) *TokenCheck {
	assertion, err := service.assertions.Verify(token)
	if err != nil {
		return &TokenCheck{Valid: false, Code: sso.ReasonCode(err)}
	}
	return &TokenCheck{Valid: true, Claims: assertion}
}

// # Session Progress

// GetSession returns a session with its effective status.
func (service *Service) GetSession(context context.Context, id string) (*session.Session, error) {
	return service.sessions.Get(context, id)
}

// AdvanceStep moves a session forward to target.
func (service *Service) AdvanceStep(context context.Context, id string, target int) (*session.Session, error) {
	return service.sessions.AdvanceStep(context, id, target)
}

// Me returns the profile of an authenticated user.
func (service *Service) Me(context context.Context, userID string) (*identity.Profile, error) {
	return service.identities.Profile(context, userID)
}

// # Completion

/*
Complete finalizes a session and mints its credentials.

The gate is evaluated first. The active → completed transition and credential
issuance share one transaction, so a session is completed at most once and
never without credentials. User activation afterwards is best-effort.

Returns:
  - error: Unauthorized (COMPLETION_GATE_UNMET) listing missing flags,
    Conflict (ALREADY_COMPLETED), Unauthorized (SESSION_EXPIRED)
*/
func (service *Service) Complete(ctx context.Context, sessionID string) (*Completion, error) {
	current, err := service.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	gate, err := service.sessions.EvaluateCompletionGate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := gateError(gate); err != nil {
		return nil, err
	}

	profile, err := service.identities.Profile(ctx, current.UserID)
	if err != nil {
		return nil, err
	}

	var pair *credential.Pair
	err = service.transactor.WithinTx(ctx, func(ctx context.Context) error {
		if err := service.sessions.Complete(ctx, sessionID); err != nil {
			return err
		}

		pair, err = service.credentials.Issue(ctx, current.UserID, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := service.identities.MarkActivated(ctx, current.UserID); err != nil {
		service.logger.ErrorContext(ctx, "auth_user_activation_failed",
			slog.String("user_id", current.UserID),
			slog.Any("error", err),
		)
	} else if profile.User != nil {
		profile.User.IsActivated = true
	}

	service.logger.InfoContext(ctx, "auth_completed",
		slog.String("user_id", current.UserID),
		slog.Bool("is_first_time", current.IsFirstTime),
		slog.String("auth_method", current.AuthMethod.String()),
	)

	return &Completion{
		SessionID:            sessionID,
		User:                 profile,
		Credentials:          pair,
		EnrollmentIncomplete: gate.EnrollmentIncomplete,
	}, nil
}

// gateError maps an ineligible gate to the client-facing error.
func gateError(gate *session.Gate) error {
	if gate.Eligible {
		return nil
	}

	switch gate.Status {
	case session.StatusCompleted:
		return apperr.Conflict("Session is already completed").WithCode("ALREADY_COMPLETED")
	case session.StatusLoggedOut:
		return apperr.Conflict("Session is no longer active").WithCode("SESSION_CLOSED")
	case session.StatusExpired:
		return apperr.Unauthorized("Session has expired, please start again").WithCode("SESSION_EXPIRED")
	}

	details := slice.Map(gate.Missing, func(flag string) apperr.FieldError {
		return apperr.FieldError{Field: flag, Message: "Step not completed"}
	})

	unmet := apperr.Unauthorized("Verification steps are not complete").WithCode("COMPLETION_GATE_UNMET")
	unmet.Details = details
	return unmet
}

// # Tokens & Logout

// Refresh rotates a credential pair.
func (service *Service) Refresh(context context.Context, refreshToken string) (*credential.Pair, error) {
	if refreshToken == "" {
		return nil, apperr.Unauthorized("Missing refresh token").WithCode("REFRESH_TOKEN_MISSING")
	}
	return service.credentials.Refresh(context, refreshToken)
}

/*
Logout terminates a session, a user's sessions, or both.

A bearer access token stands in for the user id when none is given; an invalid
one is ignored. Credentials are revoked even for already-completed sessions.
*/
func (service *Service) Logout(context context.Context, input LogoutInput) (*LogoutResult, error) {
	userID := input.UserID
	if userID == "" && input.AccessToken != "" {
		claims, err := service.credentials.VerifyAccess(context, input.AccessToken)
		if err == nil {
			userID = claims.UserID
		} else if !apperr.IsAppError(err) {
			return nil, err
		}
	}

	if input.SessionID == "" && userID == "" {
		return nil, apperr.ValidationError("A session id or user id is required")
	}

	result := &LogoutResult{SessionID: input.SessionID, UserID: userID}

	if input.SessionID != "" {
		closed, err := service.sessions.Terminate(context, input.SessionID)
		if err != nil && !(userID != "" && apperr.IsNotFound(err)) {
			return nil, err
		}
		if closed != nil {
			result.SessionsClosed += closed.SessionsClosed
			result.CredentialsRevoked += closed.CredentialsRevoked
		}
	}

	if userID != "" {
		closed, err := service.sessions.TerminateUser(context, userID)
		if err != nil {
			return nil, err
		}
		result.SessionsClosed += closed.SessionsClosed
		result.CredentialsRevoked += closed.CredentialsRevoked
	}

	service.logger.InfoContext(context, "auth_logged_out",
		slog.String("user_id", userID),
		slog.Int64("sessions_closed", result.SessionsClosed),
		slog.Int64("credentials_revoked", result.CredentialsRevoked),
	)
	return result, nil
}
