// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/postgres"
	"github.com/taibuivan/votegate/internal/platform/sec"
)

// sessionIDBytes is the entropy of a session identifier (hex encoded to 64 chars).
const sessionIDBytes = 32

// defaultDeviceID is stored when the client does not identify its device.
const defaultDeviceID = "unknown"

// # Contracts & Types

// CredentialRevoker revokes credential records bound to a session or user.
type CredentialRevoker interface {
	RevokeSession(context context.Context, sessionID string) (int64, error)
	RevokeUser(context context.Context, userID string) (int64, error)
}

// Settings is the immutable policy of the session manager.
type Settings struct {
	TTL                  time.Duration
	StrictEnrollmentGate bool
}

// Service owns session creation, flag storage, step progression and the completion gate.
type Service struct {
	repository Repository
	revoker    CredentialRevoker
	transactor postgres.Transactor
	settings   Settings
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a new session [Service].
func NewService(repository Repository, revoker CredentialRevoker, transactor postgres.Transactor, settings Settings, logger *slog.Logger) *Service {
	return &Service{
		repository: repository,
		revoker:    revoker,
		transactor: transactor,
		settings:   settings,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock returns a copy of the service reading time from now.
func (service *Service) WithClock(now func() time.Time) *Service {
	clone := *service
	clone.now = now
	return &clone
}

// Now exposes the service clock so collaborators agree on expiry decisions.
func (service *Service) Now() time.Time {
	return service.now()
}

// # Creation & Lookup

// CreateInput carries everything frozen onto a session at creation.
type CreateInput struct {
	UserID          string
	IsFirstTime     bool
	Client          ClientMeta
	AuthMethod      AuthMethod
	ExternalSubject string
}

/*
Create opens a new active session at step 1 with every flag unset.

Returns:
  - *Session: The persisted session (its ID is the only handle clients get)
  - error: ValidationError for an unknown auth method, or persistence failures
*/
func (service *Service) Create(context context.Context, input CreateInput) (*Session, error) {
	if !input.AuthMethod.Valid() {
		return nil, apperr.ValidationError("Unsupported authentication method")
	}

	id, err := sec.GenerateSecureToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("session_service_id_generation_failed: %w", err)
	}

	client := input.Client
	if client.DeviceID == "" {
		client.DeviceID = defaultDeviceID
	}

	createdAt := service.now()
	session := &Session{
		ID:              id,
		UserID:          input.UserID,
		IsFirstTime:     input.IsFirstTime,
		StepNumber:      StepCheck,
		AuthMethod:      input.AuthMethod,
		ExternalSubject: input.ExternalSubject,
		Status:          StatusActive,
		Client:          client,
		CreatedAt:       createdAt,
		ExpiresAt:       createdAt.Add(service.settings.TTL),
	}

	if err := service.repository.Create(context, session); err != nil {
		return nil, fmt.Errorf("session_service_create_failed: %w", err)
	}

	service.logger.InfoContext(context, "session_created",
		slog.String("user_id", session.UserID),
		slog.String("auth_method", session.AuthMethod.String()),
		slog.Bool("is_first_time", session.IsFirstTime),
	)

	return session, nil
}

// Get returns a session by id with its effective status resolved.
func (service *Service) Get(context context.Context, id string) (*Session, error) {
	session, err := service.repository.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	session.Status = session.EffectiveStatus(service.now())
	return session, nil
}

// RequireActive returns the session if it is active and unexpired.
//
// # Errors
//   - NotFound: unknown session
//   - Unauthorized (SESSION_EXPIRED): active but past its expiry
//   - Conflict (SESSION_CLOSED): completed or logged out
func (service *Service) RequireActive(context context.Context, id string) (*Session, error) {
	session, err := service.Get(context, id)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case StatusActive:
		return session, nil
	case StatusExpired:
		return nil, apperr.Unauthorized("Session has expired, please start again").WithCode("SESSION_EXPIRED")
	default:
		return nil, apperr.Conflict("Session is no longer active").WithCode("SESSION_CLOSED")
	}
}

// # Progression

/*
AdvanceStep moves the session to target, refusing to go backwards.

Returns:
  - *Session: The session after the update
  - error: NotFound, InvalidTransition when target < current step
*/
func (service *Service) AdvanceStep(context context.Context, id string, target int) (*Session, error) {
	if target < StepCheck {
		return nil, apperr.ValidationError("Step number must be positive")
	}

	advanced, err := service.repository.AdvanceStep(context, id, target)
	if err != nil {
		return nil, fmt.Errorf("session_service_advance_step_failed: %w", err)
	}

	session, err := service.Get(context, id)
	if err != nil {
		return nil, err
	}

	if !advanced {
		return nil, apperr.InvalidTransition(
			fmt.Sprintf("Cannot move session from step %d back to step %d", session.StepNumber, target),
		)
	}

	return session, nil
}

/*
MarkFlag sets one completion flag and raises the step to match.

The session must be active and unexpired. Setting an already-set flag is a
no-op that returns the current flags.

Returns:
  - Flags: Full flag set after the update
*/
func (service *Service) MarkFlag(context context.Context, id string, flag Flag) (Flags, error) {
	if _, err := service.RequireActive(context, id); err != nil {
		return Flags{}, err
	}

	flags, updated, err := service.repository.MarkFlag(context, id, flag, flag.Step())
	if err != nil {
		return Flags{}, fmt.Errorf("session_service_mark_flag_failed: %w", err)
	}

	// The session closed between the read and the write.
	if !updated {
		return Flags{}, apperr.Conflict("Session is no longer active").WithCode("SESSION_CLOSED")
	}

	service.logger.InfoContext(context, "session_flag_set", slog.String("flag", flag.String()))
	return flags, nil
}

// MarkPrefilled records that the session's profile was pre-filled from SSO attributes.
func (service *Service) MarkPrefilled(context context.Context, id string) error {
	if err := service.repository.MarkPrefilled(context, id); err != nil {
		return fmt.Errorf("session_service_mark_prefilled_failed: %w", err)
	}
	return nil
}

// # Completion Gate

// Gate is the outcome of [Service.EvaluateCompletionGate].
type Gate struct {
	Eligible bool   `json:"eligible"`
	Status   Status `json:"status"`

	// Missing lists the flags that block completion.
	Missing []string `json:"missing,omitempty"`

	// EnrollmentIncomplete lists unset enrollment flags of a first-time session.
	// They block completion only under the strict policy.
	EnrollmentIncomplete []string `json:"enrollmentIncomplete,omitempty"`
	Strict               bool     `json:"strict"`
}

/*
EvaluateCompletionGate decides whether a session may be finalized.

Eligible iff the session is active (and unexpired) with both contact flags set.
For first-time sessions the enrollment flags are advisory by default: missing
ones are reported and logged. With StrictEnrollmentGate they also block.
*/
func (service *Service) EvaluateCompletionGate(context context.Context, id string) (*Gate, error) {
	session, err := service.Get(context, id)
	if err != nil {
		return nil, err
	}

	return service.evaluate(context, session), nil
}

func (service *Service) evaluate(context context.Context, session *Session) *Gate {
	gate := &Gate{
		Status:  session.Status,
		Missing: session.Flags.missing(contactFlags),
		Strict:  service.settings.StrictEnrollmentGate,
	}

	if session.IsFirstTime {
		gate.EnrollmentIncomplete = session.Flags.missing(enrollmentFlags)
	}

	gate.Eligible = session.Status == StatusActive && len(gate.Missing) == 0
	if gate.Strict && len(gate.EnrollmentIncomplete) > 0 {
		gate.Eligible = false
		gate.Missing = append(gate.Missing, gate.EnrollmentIncomplete...)
	}

	if gate.Eligible && len(gate.EnrollmentIncomplete) > 0 {
		service.logger.WarnContext(context, "session_enrollment_incomplete",
			slog.String("user_id", session.UserID),
			slog.Any("missing", gate.EnrollmentIncomplete),
		)
	}

	return gate
}

// # Terminal Transitions

/*
Complete performs the active → completed transition exactly once.

Returns:
  - error: NotFound, or Conflict (ALREADY_COMPLETED) when the session is not active
*/
func (service *Service) Complete(context context.Context, id string) error {
	completed, err := service.repository.Complete(context, id, service.now())
	if err != nil {
		return fmt.Errorf("session_service_complete_failed: %w", err)
	}

	if completed {
		service.logger.InfoContext(context, "session_completed")
		return nil
	}

	// Distinguish an unknown session from one that already left the active state.
	if _, err := service.repository.FindByID(context, id); err != nil {
		return err
	}
	return apperr.Conflict("Session is already completed or closed").WithCode("ALREADY_COMPLETED")
}

// TerminateResult summarizes a logout.
type TerminateResult struct {
	SessionsClosed     int64 `json:"sessionsClosed"`
	CredentialsRevoked int64 `json:"credentialsRevoked"`
}

/*
Terminate logs a session out and revokes every credential bound to it.

Completed sessions keep their status (both terminal states are final) but
their credentials are still revoked. Both writes share one transaction.
*/
func (service *Service) Terminate(ctx context.Context, id string) (*TerminateResult, error) {
	result := &TerminateResult{}

	err := service.transactor.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := service.repository.FindByID(ctx, id); err != nil {
			return err
		}

		closed, err := service.repository.Terminate(ctx, id)
		if err != nil {
			return fmt.Errorf("session_service_terminate_failed: %w", err)
		}
		if closed {
			result.SessionsClosed = 1
		}

		revoked, err := service.revoker.RevokeSession(ctx, id)
		if err != nil {
			return fmt.Errorf("session_service_revoke_failed: %w", err)
		}
		result.CredentialsRevoked = revoked
		return nil
	})
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "session_terminated",
		slog.Int64("credentials_revoked", result.CredentialsRevoked),
	)
	return result, nil
}

// TerminateUser logs out every active session of a user and revokes all their credentials.
func (service *Service) TerminateUser(ctx context.Context, userID string) (*TerminateResult, error) {
	result := &TerminateResult{}

	err := service.transactor.WithinTx(ctx, func(ctx context.Context) error {
		closed, err := service.repository.TerminateByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("session_service_terminate_user_failed: %w", err)
		}
		result.SessionsClosed = closed

		revoked, err := service.revoker.RevokeUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("session_service_revoke_user_failed: %w", err)
		}
		result.CredentialsRevoked = revoked
		return nil
	})
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "user_sessions_terminated",
		slog.String("user_id", userID),
		slog.Int64("sessions_closed", result.SessionsClosed),
		slog.Int64("credentials_revoked", result.CredentialsRevoked),
	)
	return result, nil
}
