// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/taibuivan/votegate/internal/identity"
	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/postgres"
	"github.com/taibuivan/votegate/internal/platform/sec"
	"github.com/taibuivan/votegate/internal/platform/validate"
	"github.com/taibuivan/votegate/internal/session"
	"github.com/taibuivan/votegate/pkg/pointer"
	"github.com/taibuivan/votegate/pkg/slice"
	"github.com/taibuivan/votegate/pkg/uuid"
)

// saltBytes is the salt length of biometric template hashes.
const saltBytes = 16

// Age bounds accepted for profile details.
const (
	MinAge = 13
	MaxAge = 150
)

// # Contracts & Types

// Sessions is the part of the session manager enrollment needs.
type Sessions interface {
	Get(context context.Context, id string) (*session.Session, error)
	RequireActive(context context.Context, id string) (*session.Session, error)
	MarkFlag(context context.Context, id string, flag session.Flag) (session.Flags, error)
	Now() time.Time
}

// Profiles is the part of the identity resolver enrollment needs.
type Profiles interface {
	SaveProfile(context context.Context, userID, sessionID string, fields identity.ProfileFields, ip string) error
	AssignDefaultRole(context context.Context, userID, source string) error
	Details(context context.Context, userID string) (*identity.Details, error)
}

// Matcher decides whether a presented template matches an enrolled biometric.
type Matcher interface {
	Match(template string, enrolled *Biometric) bool
}

// hashMatcher re-derives the salted hash; it only accepts byte-identical templates.
type hashMatcher struct{}

func (hashMatcher) Match(template string, enrolled *Biometric) bool {
	return sec.CompareTemplateHash(template, enrolled.Salt, enrolled.Params, enrolled.TemplateHash)
}

// Settings is the immutable enrollment policy.
type Settings struct {
	BackupCodeCount int
	QuestionCount   int
	PassRatio       float64
	Argon2id        sec.Argon2idParams
}

// Dependencies groups the collaborators of [NewService].
type Dependencies struct {
	Repository Repository
	Sessions   Sessions
	Profiles   Profiles
	Selections QuestionSelections
	Transactor postgres.Transactor

	// Matcher defaults to a salted-hash comparison when nil.
	Matcher Matcher
}

// Service records and verifies enrollment steps.
type Service struct {
	repository Repository
	sessions   Sessions
	profiles   Profiles
	selections QuestionSelections
	transactor postgres.Transactor
	matcher    Matcher
	settings   Settings
	logger     *slog.Logger
}

// NewService constructs a new enrollment [Service].
func NewService(deps Dependencies, settings Settings, logger *slog.Logger) *Service {
	matcher := deps.Matcher
	if matcher == nil {
		matcher = hashMatcher{}
	}

	return &Service{
		repository: deps.Repository,
		sessions:   deps.Sessions,
		profiles:   deps.Profiles,
		selections: deps.Selections,
		transactor: deps.Transactor,
		matcher:    matcher,
		settings:   settings,
		logger:     logger,
	}
}

// requireEnrollable returns the session when it is active and first-time.
func (service *Service) requireEnrollable(context context.Context, sessionID string) (*session.Session, error) {
	active, err := service.sessions.RequireActive(context, sessionID)
	if err != nil {
		return nil, err
	}

	if !active.IsFirstTime || active.UserID == "" {
		return nil, apperr.Forbidden("This step is only for first-time users").WithCode("ENROLLMENT_NOT_ALLOWED")
	}
	return active, nil
}

// result builds the common step response from the flags after an update.
func result(active *session.Session, flags session.Flags) StepResult {
	active.Flags = flags
	return StepResult{SessionID: active.ID, Flags: flags, NextStep: active.NextStep()}
}

// # Profile

// ProfileInput is the payload of [Service.RecordProfile].
type ProfileInput struct {
	SessionID string
	Fields    identity.ProfileFields
	IPAddress string
}

/*
RecordProfile stores the user's profile details.

Direct-check sessions must supply first name, last name, age, gender and
country. SSO sessions were pre-filled, so only a provided age is checked.
The profile upsert, the default role and the session flag share one transaction.
*/
func (service *Service) RecordProfile(ctx context.Context, input ProfileInput) (*StepResult, error) {
	active, err := service.requireEnrollable(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	fields := input.Fields
	validator := &validate.Validator{}
	if active.AuthMethod == session.AuthMethodDirectCheck {
		validator.Required("firstName", fields.FirstName).
			Required("lastName", fields.LastName).
			Required("gender", fields.Gender).
			Required("country", fields.Country).
			Custom("age", fields.Age == nil, "This field is required")
	}
	if fields.Age != nil {
		validator.Range("age", *fields.Age, MinAge, MaxAge)
	}
	validator.MaxLen("firstName", fields.FirstName, 100).
		MaxLen("lastName", fields.LastName, 100).
		MaxLen("city", fields.City, 100)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	var flags session.Flags
	err = service.transactor.WithinTx(ctx, func(ctx context.Context) error {
		if err := service.profiles.SaveProfile(ctx, active.UserID, active.ID, fields, input.IPAddress); err != nil {
			return err
		}
		if err := service.profiles.AssignDefaultRole(ctx, active.UserID, identity.RoleSourceEnrollment); err != nil {
			return err
		}

		flags, err = service.sessions.MarkFlag(ctx, active.ID, session.FlagUserDetailsCollected)
		return err
	})
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "enrollment_profile_recorded",
		slog.String("user_id", active.UserID),
		slog.String("auth_method", active.AuthMethod.String()),
	)

	step := result(active, flags)
	return &step, nil
}

// Profile returns the profile details of the session's user.
func (service *Service) Profile(context context.Context, sessionID string) (*identity.Details, error) {
	current, err := service.sessions.Get(context, sessionID)
	if err != nil {
		return nil, err
	}
	if current.UserID == "" {
		return nil, apperr.NotFound("User details")
	}
	return service.profiles.Details(context, current.UserID)
}

// # Biometric

// DeviceInput describes the client device; every field is optional.
type DeviceInput struct {
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	DeviceName string `json:"deviceName"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
}

// BiometricInput is the payload of [Service.RecordBiometric].
type BiometricInput struct {
	SessionID    string
	Type         BiometricType
	Template     string
	QualityScore *int
	Device       DeviceInput
	IPAddress    string
	UserAgent    string
}

/*
RecordBiometric enrolls a biometric template and issues fresh backup codes.

The template is stored as a salted argon2id hash and replaces any previous
primary biometric. The device is recorded alongside.

Returns:
  - *BiometricResult: Includes the plain backup codes; they are never retrievable again
*/
func (service *Service) RecordBiometric(ctx context.Context, input BiometricInput) (*BiometricResult, error) {
	validator := &validate.Validator{}
	validator.OneOf("biometricType", string(input.Type), BiometricTypes...).
		Required("biometricData", input.Template)
	if input.QualityScore != nil {
		validator.Range("qualityScore", *input.QualityScore, 0, 100)
	}
	if err := validator.Err(); err != nil {
		return nil, err
	}

	active, err := service.requireEnrollable(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	salt, err := sec.GenerateSalt(saltBytes)
	if err != nil {
		return nil, fmt.Errorf("enrollment_service_salt_failed: %w", err)
	}

	codes, err := sec.GenerateRecoveryCodes(service.settings.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("enrollment_service_backup_codes_failed: %w", err)
	}
	hashes := slice.Map(codes, func(code string) string {
		return sec.HashToken(sec.NormalizeRecoveryCode(code))
	})

	now := service.sessions.Now()
	quality := pointer.Fallback(input.QualityScore, DefaultQualityScore)

	biometric := &Biometric{
		ID:           uuid.New(),
		UserID:       active.UserID,
		SessionID:    active.ID,
		Type:         input.Type,
		TemplateHash: sec.DeriveTemplateHash(input.Template, salt, service.settings.Argon2id),
		Salt:         salt,
		Params:       service.settings.Argon2id,
		QualityScore: quality,
		IsPrimary:    true,
		CreatedAt:    now,
	}

	device := deviceFrom(input, active, now)

	var flags session.Flags
	err = service.transactor.WithinTx(ctx, func(ctx context.Context) error {
		if err := service.repository.ReplacePrimaryBiometric(ctx, biometric); err != nil {
			return err
		}
		if err := service.repository.UpsertDevice(ctx, device); err != nil {
			return err
		}
		if err := service.repository.ReplaceBackupCodes(ctx, active.UserID, hashes, now); err != nil {
			return err
		}

		flags, err = service.sessions.MarkFlag(ctx, active.ID, session.FlagBiometricCollected)
		return err
	})
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "enrollment_biometric_recorded",
		slog.String("user_id", active.UserID),
		slog.String("biometric_type", string(biometric.Type)),
		slog.Int("backup_codes", len(codes)),
	)

	return &BiometricResult{
		StepResult:  result(active, flags),
		BiometricID: biometric.ID,
		BackupCodes: codes,
	}, nil
}

// deviceFrom fills device defaults from the session's client metadata.
func deviceFrom(input BiometricInput, active *session.Session, now time.Time) *Device {
	deviceID := input.Device.DeviceID
	if deviceID == "" {
		deviceID = active.Client.DeviceID
	}
	if deviceID == "" || deviceID == "unknown" {
		deviceID = uuid.New()
	}

	return &Device{
		UserID:     active.UserID,
		SessionID:  active.ID,
		DeviceID:   deviceID,
		DeviceType: orDefault(input.Device.DeviceType, "unknown"),
		DeviceName: orDefault(input.Device.DeviceName, "Unknown Device"),
		OS:         orDefault(input.Device.OS, "unknown"),
		Browser:    orDefault(input.Device.Browser, "unknown"),
		IPAddress:  orDefault(input.IPAddress, active.Client.IPAddress),
		UserAgent:  orDefault(input.UserAgent, active.Client.UserAgent),
		LastUsed:   now,
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// BiometricCheckInput is the payload of [Service.VerifyBiometric].
type BiometricCheckInput struct {
	SessionID string
	Type      BiometricType
	Template  string
}

/*
VerifyBiometric matches a presented template against the user's primary biometric.

Returns:
  - error: NotFound (BIOMETRIC_NOT_FOUND), Unauthorized (BIOMETRIC_MISMATCH)
*/
func (service *Service) VerifyBiometric(context context.Context, input BiometricCheckInput) error {
	validator := &validate.Validator{}
	validator.Required("biometricData", input.Template)
	if input.Type != "" {
		validator.OneOf("biometricType", string(input.Type), BiometricTypes...)
	}
	if err := validator.Err(); err != nil {
		return err
	}

	active, err := service.sessions.RequireActive(context, input.SessionID)
	if err != nil {
		return err
	}

	enrolled, err := service.repository.PrimaryBiometric(context, active.UserID, input.Type)
	if err != nil {
		return err
	}

	matched := service.matcher.Match(input.Template, enrolled)
	if err := service.repository.RecordBiometricCheck(context, enrolled.ID, matched, service.sessions.Now()); err != nil {
		return err
	}

	if !matched {
		service.logger.WarnContext(context, "biometric_verification_failed", slog.String("user_id", active.UserID))
		return apperr.Unauthorized("Biometric verification failed").WithCode("BIOMETRIC_MISMATCH")
	}

	service.logger.InfoContext(context, "biometric_verified", slog.String("user_id", active.UserID))
	return nil
}

// RedeemBackupCode consumes one backup code of the session's user.
func (service *Service) RedeemBackupCode(context context.Context, sessionID, code string) (*RedeemResult, error) {
	normalized := sec.NormalizeRecoveryCode(code)
	if len(normalized) != 12 {
		return nil, apperr.ValidationError("Backup code must look like XXXX-XXXX-XXXX")
	}

	active, err := service.sessions.RequireActive(context, sessionID)
	if err != nil {
		return nil, err
	}

	redeemed, err := service.repository.RedeemBackupCode(context, active.UserID, sec.HashToken(normalized), service.sessions.Now())
	if err != nil {
		return nil, err
	}
	if !redeemed {
		return nil, apperr.Unauthorized("Backup code is invalid or already used").WithCode("BACKUP_CODE_INVALID")
	}

	remaining, err := service.repository.RemainingBackupCodes(context, active.UserID)
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(context, "backup_code_redeemed",
		slog.String("user_id", active.UserID),
		slog.Int("remaining", remaining),
	)
	return &RedeemResult{Redeemed: true, Remaining: remaining}, nil
}

// # Security Questions

/*
Questions draws a random selection of active catalogue questions for the session.

The selection is remembered until the session expires so the answers can be
checked against what was actually offered.
*/
func (service *Service) Questions(context context.Context, sessionID string) ([]Question, error) {
	active, err := service.requireEnrollable(context, sessionID)
	if err != nil {
		return nil, err
	}

	questions, err := service.repository.RandomQuestions(context, service.settings.QuestionCount)
	if err != nil {
		return nil, err
	}

	ids := slice.Map(questions, func(question Question) int { return question.ID })

	ttl := active.ExpiresAt.Sub(service.sessions.Now())
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if err := service.selections.Save(context, active.ID, ids, ttl); err != nil {
		return nil, err
	}

	return questions, nil
}

// AnswersInput is the payload of [Service.RecordSecurityAnswers].
type AnswersInput struct {
	SessionID string
	Answers   []Answer
}

/*
RecordSecurityAnswers stores hashed answers and sets the session flag.

At least [MinimumAnswers] distinct questions must be answered. When the
session was offered a selection every answer must belong to it; otherwise
every question must be an active catalogue entry.
*/
func (service *Service) RecordSecurityAnswers(ctx context.Context, input AnswersInput) (*StepResult, error) {
	if err := validateAnswers(input.Answers); err != nil {
		return nil, err
	}

	active, err := service.requireEnrollable(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	if err := service.checkOffered(ctx, active.ID, input.Answers); err != nil {
		return nil, err
	}

	stored := make([]StoredAnswer, len(input.Answers))
	for i, answer := range input.Answers {
		hash, err := sec.HashSecret(normalizeAnswer(answer.Answer))
		if err != nil {
			return nil, fmt.Errorf("enrollment_service_hash_answer_failed: %w", err)
		}
		stored[i] = StoredAnswer{QuestionID: answer.QuestionID, AnswerHash: hash}
	}

	var flags session.Flags
	err = service.transactor.WithinTx(ctx, func(ctx context.Context) error {
		if err := service.repository.ReplaceAnswers(ctx, active.UserID, active.ID, stored, service.sessions.Now()); err != nil {
			return err
		}

		flags, err = service.sessions.MarkFlag(ctx, active.ID, session.FlagSecurityQuestionsAnswered)
		return err
	})
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "enrollment_security_answers_recorded",
		slog.String("user_id", active.UserID),
		slog.Int("answers", len(stored)),
	)

	step := result(active, flags)
	return &step, nil
}

func validateAnswers(answers []Answer) error {
	validator := &validate.Validator{}
	validator.Custom("answers", len(answers) < MinimumAnswers,
		fmt.Sprintf("At least %d answers are required", MinimumAnswers))

	seen := make(map[int]bool, len(answers))
	for i, answer := range answers {
		field := fmt.Sprintf("answers[%d]", i)
		validator.Required(field+".answer", answer.Answer).
			MaxLen(field+".answer", answer.Answer, 200).
			Custom(field+".questionId", seen[answer.QuestionID], "Each question can be answered once")
		seen[answer.QuestionID] = true
	}
	return validator.Err()
}

// checkOffered rejects answers to questions the session was not offered.
func (service *Service) checkOffered(context context.Context, sessionID string, answers []Answer) error {
	ids := slice.Map(answers, func(answer Answer) int { return answer.QuestionID })

	offered, err := service.selections.Load(context, sessionID)
	if err != nil {
		return err
	}

	if offered == nil {
		offered, err = service.repository.ActiveQuestionIDs(context, ids)
		if err != nil {
			return err
		}
	}

	for _, id := range ids {
		if !slices.Contains(offered, id) {
			return apperr.ValidationError(fmt.Sprintf("Question %d was not offered to this session", id)).
				WithCode("QUESTION_NOT_OFFERED")
		}
	}
	return nil
}

/*
VerifyAnswers checks answers against the stored hashes of the session's user.

Required is ceil(total × PassRatio) where total counts every enrolled answer,
so unanswered questions count as wrong.
*/
func (service *Service) VerifyAnswers(context context.Context, sessionID string, answers []Answer) (*AnswerCheck, error) {
	if len(answers) == 0 {
		return nil, validate.Invalid("answers", "Answers are required")
	}

	active, err := service.sessions.RequireActive(context, sessionID)
	if err != nil {
		return nil, err
	}

	stored, err := service.repository.Answers(context, active.UserID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, apperr.NotFound("Security answers").WithCode("SECURITY_ANSWERS_NOT_FOUND")
	}

	hashes := slice.Associate(stored, func(answer StoredAnswer) (int, string) {
		return answer.QuestionID, answer.AnswerHash
	})

	check := &AnswerCheck{
		Total:    len(stored),
		Required: int(math.Ceil(float64(len(stored)) * service.settings.PassRatio)),
	}

	counted := make(map[int]bool, len(answers))
	for _, answer := range answers {
		hash, ok := hashes[answer.QuestionID]
		if !ok || counted[answer.QuestionID] {
			continue
		}
		counted[answer.QuestionID] = true
		if sec.CheckSecretHash(normalizeAnswer(answer.Answer), hash) {
			check.Correct++
		}
	}
	check.Verified = check.Correct >= check.Required

	service.logger.InfoContext(context, "security_answers_checked",
		slog.String("user_id", active.UserID),
		slog.Bool("verified", check.Verified),
		slog.Int("correct", check.Correct),
		slog.Int("total", check.Total),
	)

	return check, nil
}
