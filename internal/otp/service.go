// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/taibuivan/votegate/internal/notify"
	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/constants"
	"github.com/taibuivan/votegate/internal/platform/postgres"
	"github.com/taibuivan/votegate/internal/platform/sec"
	"github.com/taibuivan/votegate/internal/platform/validate"
	"github.com/taibuivan/votegate/internal/session"
	"github.com/taibuivan/votegate/pkg/uuid"
)

// # Contracts & Types

// Sessions is the part of the session manager the engine needs.
type Sessions interface {
	RequireActive(context context.Context, id string) (*session.Session, error)
	MarkFlag(context context.Context, id string, flag session.Flag) (session.Flags, error)
}

// Notifier delivers a locally generated code.
type Notifier interface {
	Send(context context.Context, message notify.Message) error
}

// PhoneVerifier delegates phone verification to a provider that owns the code.
type PhoneVerifier interface {
	Start(context context.Context, phone string) (string, error)
	Check(context context.Context, phone, code string) (bool, error)
}

// Settings is the immutable OTP policy.
type Settings struct {
	TTL         time.Duration
	MaxAttempts int
	Length      int

	// ExposeCode echoes locally generated codes in [IssueResult]. Development only.
	ExposeCode bool
}

// Service owns the issue and verify protocol.
type Service struct {
	repository Repository
	sessions   Sessions
	transactor postgres.Transactor
	limiter    IssueLimiter
	notifiers  map[Channel]Notifier
	phone      PhoneVerifier
	settings   Settings
	logger     *slog.Logger
	now        func() time.Time
}

// Dependencies groups the collaborators of [NewService].
type Dependencies struct {
	Repository Repository
	Sessions   Sessions
	Transactor postgres.Transactor
	Limiter    IssueLimiter
	Email      Notifier
	SMS        Notifier

	// Phone, when set, replaces local SMS codes with delegated verification.
	Phone PhoneVerifier
}

// NewService constructs a new OTP [Service].
func NewService(deps Dependencies, settings Settings, logger *slog.Logger) *Service {
	return &Service{
		repository: deps.Repository,
		sessions:   deps.Sessions,
		transactor: deps.Transactor,
		limiter:    deps.Limiter,
		notifiers:  map[Channel]Notifier{ChannelEmail: deps.Email, ChannelSMS: deps.SMS},
		phone:      deps.Phone,
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

// # Issue

// IssueInput identifies the session and where the code goes.
type IssueInput struct {
	SessionID   string
	Channel     Channel
	Destination string
}

// IssueResult reports what happened to a newly issued code.
type IssueResult struct {
	Channel       Channel   `json:"channel"`
	Destination   string    `json:"destination"`
	Delivered     bool      `json:"delivered"`
	DeliveryError string    `json:"deliveryError,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt"`

	// DevCode is set only when Settings.ExposeCode is on.
	DevCode string `json:"devCode,omitempty"`
}

/*
Issue creates a code for the session and hands it to the channel's notifier.

The code row is persisted before delivery is attempted, so a delivery failure
still leaves a verifiable code. Such failures are reported in the result and
never returned as errors.

Returns:
  - *IssueResult: Delivery status with the destination masked
  - error: ValidationError, session errors, RateLimited, or persistence failures
*/
func (service *Service) Issue(context context.Context, input IssueInput) (*IssueResult, error) {
	if !input.Channel.Valid() {
		return nil, apperr.ValidationError("Unsupported verification channel")
	}
	if input.Destination == "" {
		return nil, validate.Invalid("destination", "Destination is required")
	}

	active, err := service.sessions.RequireActive(context, input.SessionID)
	if err != nil {
		return nil, err
	}

	if err := service.limiter.Allow(context, active.ID, input.Channel); err != nil {
		return nil, err
	}

	issuedAt := service.now()
	code := &Code{
		ID:          uuid.New(),
		SessionID:   active.ID,
		UserID:      active.UserID,
		Channel:     input.Channel,
		Destination: input.Destination,
		Provider:    ProviderLocal,
		ExpiresAt:   issuedAt.Add(service.settings.TTL),
		CreatedAt:   issuedAt,
	}

	result := &IssueResult{
		Channel:     input.Channel,
		Destination: notify.Mask(input.Destination),
		ExpiresAt:   code.ExpiresAt,
	}

	if input.Channel == ChannelSMS && service.phone != nil {
		return service.issueDelegated(context, code, result)
	}

	plain, err := sec.GenerateNumericCode(service.settings.Length)
	if err != nil {
		return nil, fmt.Errorf("otp_service_generate_failed: %w", err)
	}
	code.CodeHash = sec.HashToken(plain)

	if err := service.repository.Create(context, code); err != nil {
		return nil, fmt.Errorf("otp_service_create_failed: %w", err)
	}

	deliveryError := service.deliver(context, code, plain)
	result.Delivered = deliveryError == nil
	if deliveryError != nil {
		result.DeliveryError = "Code could not be delivered; request a new code or try again later"
	}
	if service.settings.ExposeCode {
		result.DevCode = plain
	}

	service.logger.InfoContext(context, "otp_issued",
		slog.String("channel", string(code.Channel)),
		slog.String("provider", string(code.Provider)),
		slog.Bool("delivered", result.Delivered),
	)

	return result, nil
}

// issueDelegated asks the phone verifier to send its own code and stores its handle.
func (service *Service) issueDelegated(context context.Context, code *Code, result *IssueResult) (*IssueResult, error) {
	code.Provider = ProviderTwilioVerify

	bounded, cancel := contextWithNotifierTimeout(context)
	reference, startError := service.phone.Start(bounded, code.Destination)
	cancel()

	code.ProviderRef = reference
	if err := service.repository.Create(context, code); err != nil {
		return nil, fmt.Errorf("otp_service_create_failed: %w", err)
	}

	result.Delivered = startError == nil
	if startError != nil {
		result.DeliveryError = "Code could not be delivered; request a new code or try again later"
		service.logger.WarnContext(context, "otp_delivery_failed",
			slog.String("channel", string(code.Channel)),
			slog.String("provider", string(code.Provider)),
			slog.Any("error", startError),
		)
	}

	service.logger.InfoContext(context, "otp_issued",
		slog.String("channel", string(code.Channel)),
		slog.String("provider", string(code.Provider)),
		slog.Bool("delivered", result.Delivered),
	)

	return result, nil
}

// deliver sends plain through the channel's notifier within the notifier timeout.
func (service *Service) deliver(context context.Context, code *Code, plain string) error {
	notifier := service.notifiers[code.Channel]
	if notifier == nil {
		return errors.New("otp: no notifier configured")
	}

	bounded, cancel := contextWithNotifierTimeout(context)
	defer cancel()

	err := notifier.Send(bounded, notify.Message{
		Destination: code.Destination,
		Code:        plain,
		ExpiresIn:   code.ExpiresAt.Sub(code.CreatedAt),
	})
	if err != nil {
		service.logger.WarnContext(context, "otp_delivery_failed",
			slog.String("channel", string(code.Channel)),
			slog.String("destination", notify.Mask(code.Destination)),
			slog.Any("error", err),
		)
	}
	return err
}

// # Verify

// VerifyInput is one verification attempt.
type VerifyInput struct {
	SessionID string
	Channel   Channel
	Code      string
}

// VerifyResult is returned when a code is accepted.
type VerifyResult struct {
	Verified bool          `json:"verified"`
	Flags    session.Flags `json:"sessionFlags"`
	NextStep int           `json:"nextStep"`
}

/*
Verify checks a candidate code against the latest unused code of the session.

# Order of checks
 1. Format: 4 to 10 digits (ValidationError)
 2. Lookup: latest unused code (NotFound OTP_NOT_FOUND)
 3. Length: local codes need exactly Settings.Length digits (ValidationError)
 4. Expiry: now after expiresAt (400 OTP_EXPIRED)
 5. Attempt cap: attempts >= MaxAttempts (429 OTP_TOO_MANY_ATTEMPTS), regardless of correctness
 6. Comparison: mismatch counts one attempt (400 OTP_INVALID)

A match marks the code used and sets the session flag in one transaction.
The cap is checked again by the consuming write, so failures that land
between the lookup and the match still block it.
*/
func (service *Service) Verify(ctx context.Context, input VerifyInput) (*VerifyResult, error) {
	validator := &validate.Validator{}
	validator.Custom("channel", !input.Channel.Valid(), "Channel must be email or sms").
		Numeric("code", input.Code, minCodeLength, maxCodeLength)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	active, err := service.sessions.RequireActive(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	code, err := service.repository.LatestUnused(ctx, active.ID, input.Channel)
	if err != nil {
		return nil, err
	}

	if code.Provider == ProviderLocal && len(input.Code) != service.settings.Length {
		return nil, validate.Invalid("code", fmt.Sprintf("Code must be %d digits", service.settings.Length))
	}

	now := service.now()
	if code.Expired(now) {
		return nil, apperr.ValidationError("Verification code has expired").WithCode(CodeExpired)
	}
	if code.AttemptCount >= service.settings.MaxAttempts {
		return nil, tooManyAttempts()
	}

	matched, err := service.compare(ctx, code, input.Code)
	if err != nil {
		return nil, err
	}

	if !matched {
		return nil, service.recordFailure(ctx, code)
	}

	var flags session.Flags
	err = service.transactor.WithinTx(ctx, func(ctx context.Context) error {
		consumption, err := service.repository.MarkUsed(ctx, code.ID, now, service.settings.MaxAttempts)
		if err != nil {
			return fmt.Errorf("otp_service_mark_used_failed: %w", err)
		}
		switch consumption {
		case AlreadyUsed:
			return apperr.Conflict("Verification code was already used").WithCode(CodeAlreadyUsed)
		case AttemptsExhausted:
			return tooManyAttempts()
		}

		flags, err = service.sessions.MarkFlag(ctx, active.ID, code.Channel.Flag())
		return err
	})
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "otp_verified", slog.String("channel", string(code.Channel)))

	active.Flags = flags
	return &VerifyResult{Verified: true, Flags: flags, NextStep: active.NextStep()}, nil
}

// compare matches candidate against a local hash or asks the phone verifier.
func (service *Service) compare(context context.Context, code *Code, candidate string) (bool, error) {
	switch code.Provider {
	case ProviderLocal:
		return sec.EqualHash(sec.HashToken(candidate), code.CodeHash), nil

	case ProviderTwilioVerify:
		if service.phone == nil {
			return false, fmt.Errorf("otp_service_compare_failed: no phone verifier for %s code", code.Provider)
		}

		bounded, cancel := contextWithNotifierTimeout(context)
		defer cancel()

		approved, err := service.phone.Check(bounded, code.Destination, candidate)
		if err != nil {
			return false, fmt.Errorf("otp_service_delegated_check_failed: %w", err)
		}
		return approved, nil

	default:
		return false, fmt.Errorf("otp_service_compare_failed: unknown provider %q", code.Provider)
	}
}

// recordFailure counts one failed attempt and builds the matching error.
func (service *Service) recordFailure(context context.Context, code *Code) error {
	counted, err := service.repository.IncrementAttempts(context, code.ID, service.settings.MaxAttempts)
	if err != nil {
		return fmt.Errorf("otp_service_increment_attempts_failed: %w", err)
	}

	// A concurrent attempt used up the last slot.
	if !counted {
		return tooManyAttempts()
	}

	remaining := service.settings.MaxAttempts - code.AttemptCount - 1
	service.logger.InfoContext(context, "otp_mismatch",
		slog.String("channel", string(code.Channel)),
		slog.Int("attempts_remaining", remaining),
	)

	return apperr.ValidationError(fmt.Sprintf("Invalid verification code, %d attempts remaining", max(remaining, 0))).
		WithCode(CodeInvalid)
}

// tooManyAttempts is permanent for the code; the client must request a new one.
func tooManyAttempts() error {
	return &apperr.AppError{
		Code:       CodeTooManyAttempts,
		Message:    "Too many failed attempts, request a new verification code",
		HTTPStatus: http.StatusTooManyRequests,
	}
}

func contextWithNotifierTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, constants.NotifierTimeout)
}
