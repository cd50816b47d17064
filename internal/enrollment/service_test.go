// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package enrollment_test

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/votegate/internal/enrollment"
	"github.com/taibuivan/votegate/internal/identity"
	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/sec"
	"github.com/taibuivan/votegate/internal/session"
)

const (
	sessionID = "8c1f0e2d3b4a59687f6e5d4c3b2a1908f7e6d5c4b3a291807f6e5d4c3b2a1908"
	userID    = "0190f5e2-0000-7000-8000-0000000000aa"

	codeValidation = "VALIDATION_ERROR"
)

// # Fakes

type memoryRepository struct {
	mu          sync.Mutex
	biometrics  []*enrollment.Biometric
	devices     map[string]*enrollment.Device
	backupCodes map[string]bool
	catalogue   []enrollment.Question
	answers     []enrollment.StoredAnswer
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		devices:     map[string]*enrollment.Device{},
		backupCodes: map[string]bool{},
		catalogue: []enrollment.Question{
			{ID: 1, Text: "What was the name of your first pet?", Category: "personal"},
			{ID: 2, Text: "In which city were you born?", Category: "personal"},
			{ID: 3, Text: "What was your first school?", Category: "education"},
			{ID: 4, Text: "What is your favourite book?", Category: "preferences"},
			{ID: 5, Text: "What was your first car?", Category: "personal"},
		},
	}
}

func (repository *memoryRepository) ReplacePrimaryBiometric(_ context.Context, biometric *enrollment.Biometric) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for _, existing := range repository.biometrics {
		if existing.UserID == biometric.UserID {
			existing.IsPrimary = false
		}
	}
	clone := *biometric
	repository.biometrics = append(repository.biometrics, &clone)
	return nil
}

func (repository *memoryRepository) PrimaryBiometric(_ context.Context, userID string, kind enrollment.BiometricType) (*enrollment.Biometric, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for _, biometric := range repository.biometrics {
		if biometric.UserID == userID && biometric.IsPrimary && (kind == "" || biometric.Type == kind) {
			clone := *biometric
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Biometric").WithCode("BIOMETRIC_NOT_FOUND")
}

func (repository *memoryRepository) RecordBiometricCheck(_ context.Context, id string, verified bool, _ time.Time) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for _, biometric := range repository.biometrics {
		if biometric.ID == id {
			if verified {
				biometric.IsVerified = true
				biometric.VerificationCount++
			} else {
				biometric.FailedAttempts++
			}
		}
	}
	return nil
}

func (repository *memoryRepository) UpsertDevice(_ context.Context, device *enrollment.Device) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	clone := *device
	repository.devices[device.UserID+"/"+device.DeviceID] = &clone
	return nil
}

func (repository *memoryRepository) ReplaceBackupCodes(_ context.Context, _ string, hashes []string, _ time.Time) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	for hash, used := range repository.backupCodes {
		if !used {
			delete(repository.backupCodes, hash)
		}
	}
	for _, hash := range hashes {
		repository.backupCodes[hash] = false
	}
	return nil
}

func (repository *memoryRepository) RedeemBackupCode(_ context.Context, _ string, hash string, _ time.Time) (bool, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	used, ok := repository.backupCodes[hash]
	if !ok || used {
		return false, nil
	}
	repository.backupCodes[hash] = true
	return true, nil
}

func (repository *memoryRepository) RemainingBackupCodes(_ context.Context, _ string) (int, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	remaining := 0
	for _, used := range repository.backupCodes {
		if !used {
			remaining++
		}
	}
	return remaining, nil
}

func (repository *memoryRepository) RandomQuestions(_ context.Context, limit int) ([]enrollment.Question, error) {
	if limit > len(repository.catalogue) {
		limit = len(repository.catalogue)
	}
	return slices.Clone(repository.catalogue[:limit]), nil
}

func (repository *memoryRepository) ActiveQuestionIDs(_ context.Context, ids []int) ([]int, error) {
	var active []int
	for _, question := range repository.catalogue {
		if slices.Contains(ids, question.ID) {
			active = append(active, question.ID)
		}
	}
	return active, nil
}

func (repository *memoryRepository) ReplaceAnswers(_ context.Context, _, _ string, answers []enrollment.StoredAnswer, _ time.Time) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	repository.answers = slices.Clone(answers)
	return nil
}

func (repository *memoryRepository) Answers(_ context.Context, _ string) ([]enrollment.StoredAnswer, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	return slices.Clone(repository.answers), nil
}

type fakeSessions struct {
	session *session.Session
	now     time.Time
}

func (sessions *fakeSessions) Get(_ context.Context, id string) (*session.Session, error) {
	if id != sessions.session.ID {
		return nil, apperr.NotFound("Session")
	}
	clone := *sessions.session
	return &clone, nil
}

func (sessions *fakeSessions) RequireActive(ctx context.Context, id string) (*session.Session, error) {
	current, err := sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != session.StatusActive {
		return nil, apperr.Conflict("Session is no longer active").WithCode("SESSION_CLOSED")
	}
	return current, nil
}

func (sessions *fakeSessions) MarkFlag(_ context.Context, _ string, flag session.Flag) (session.Flags, error) {
	sessions.session.Flags = sessions.session.Flags.With(flag)
	return sessions.session.Flags, nil
}

func (sessions *fakeSessions) Now() time.Time {
	return sessions.now
}

type fakeProfiles struct {
	saved []identity.ProfileFields
	roles []string
}

func (profiles *fakeProfiles) SaveProfile(_ context.Context, _, _ string, fields identity.ProfileFields, _ string) error {
	profiles.saved = append(profiles.saved, fields)
	return nil
}

func (profiles *fakeProfiles) AssignDefaultRole(_ context.Context, _, source string) error {
	profiles.roles = append(profiles.roles, source)
	return nil
}

func (profiles *fakeProfiles) Details(_ context.Context, userID string) (*identity.Details, error) {
	if len(profiles.saved) == 0 {
		return nil, apperr.NotFound("User details")
	}
	last := profiles.saved[len(profiles.saved)-1]
	return &identity.Details{UserID: userID, FirstName: last.FirstName, LastName: last.LastName, Age: last.Age}, nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// # Fixture

type fixture struct {
	service    *enrollment.Service
	repository *memoryRepository
	sessions   *fakeSessions
	profiles   *fakeProfiles
	redis      *miniredis.Miniredis
}

func newFixture(t *testing.T, method session.AuthMethod) *fixture {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		repository: newMemoryRepository(),
		sessions: &fakeSessions{now: now, session: &session.Session{
			ID:          sessionID,
			UserID:      userID,
			IsFirstTime: true,
			StepNumber:  3,
			AuthMethod:  method,
			Flags:       session.Flags{EmailVerified: true, SMSVerified: true},
			Status:      session.StatusActive,
			Client:      session.ClientMeta{IPAddress: "203.0.113.7", UserAgent: "test-agent", DeviceID: "unknown"},
			CreatedAt:   now,
			ExpiresAt:   now.Add(24 * time.Hour),
		}},
		profiles: &fakeProfiles{},
		redis:    server,
	}

	f.service = enrollment.NewService(enrollment.Dependencies{
		Repository: f.repository,
		Sessions:   f.sessions,
		Profiles:   f.profiles,
		Selections: enrollment.NewQuestionSelections(client),
		Transactor: passthroughTx{},
	}, enrollment.Settings{
		BackupCodeCount: 10,
		QuestionCount:   5,
		PassRatio:       0.6,
		Argon2id:        sec.Argon2idParams{Time: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 32},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return f
}

func intPtr(value int) *int { return &value }

func threeAnswers() []enrollment.Answer {
	return []enrollment.Answer{
		{QuestionID: 1, Answer: "Rex"},
		{QuestionID: 2, Answer: "São Paulo"},
		{QuestionID: 3, Answer: "Riverside  Elementary"},
	}
}

// # Profile

/* TestService_RecordProfile verifies required fields per auth method and the age bounds. */
func TestService_RecordProfile(t *testing.T) {
	complete := identity.ProfileFields{FirstName: "Ada", LastName: "Lovelace", Age: intPtr(36), Gender: "female", Country: "GB"}

	tests := []struct {
		name    string
		method  session.AuthMethod
		fields  identity.ProfileFields
		wantErr string
	}{
		{name: "direct complete", method: session.AuthMethodDirectCheck, fields: complete},
		{name: "direct missing country", method: session.AuthMethodDirectCheck, fields: identity.ProfileFields{FirstName: "Ada", LastName: "Lovelace", Age: intPtr(36), Gender: "female"}, wantErr: codeValidation},
		{name: "direct missing age", method: session.AuthMethodDirectCheck, fields: identity.ProfileFields{FirstName: "Ada", LastName: "Lovelace", Gender: "female", Country: "GB"}, wantErr: codeValidation},
		{name: "age below minimum", method: session.AuthMethodDirectCheck, fields: identity.ProfileFields{FirstName: "Ada", LastName: "Lovelace", Age: intPtr(12), Gender: "female", Country: "GB"}, wantErr: codeValidation},
		{name: "age at minimum", method: session.AuthMethodDirectCheck, fields: identity.ProfileFields{FirstName: "Ada", LastName: "Lovelace", Age: intPtr(13), Gender: "female", Country: "GB"}},
		{name: "age above maximum", method: session.AuthMethodSSOAssertion, fields: identity.ProfileFields{Age: intPtr(151)}, wantErr: codeValidation},
		{name: "sso partial", method: session.AuthMethodSSOAssertion, fields: identity.ProfileFields{City: "Leeds"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, test.method)

			result, err := f.service.RecordProfile(context.Background(), enrollment.ProfileInput{
				SessionID: sessionID,
				Fields:    test.fields,
			})

			if test.wantErr != "" {
				require.Error(t, err)
				assert.True(t, apperr.HasCode(err, test.wantErr), "got %v", err)
				assert.Empty(t, f.profiles.saved)
				return
			}

			require.NoError(t, err)
			assert.True(t, result.Flags.UserDetailsCollected)
			assert.Equal(t, 5, result.NextStep)
			assert.Equal(t, []string{identity.RoleSourceEnrollment}, f.profiles.roles)
		})
	}
}

/* TestService_RecordProfile_RequiresFirstTime verifies returning users cannot enroll. */
func TestService_RecordProfile_RequiresFirstTime(t *testing.T) {
	f := newFixture(t, session.AuthMethodSSOAssertion)
	f.sessions.session.IsFirstTime = false

	_, err := f.service.RecordProfile(context.Background(), enrollment.ProfileInput{SessionID: sessionID})

	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "ENROLLMENT_NOT_ALLOWED"))
}

/* TestService_RecordProfile_ClosedSession verifies a completed session rejects writes. */
func TestService_RecordProfile_ClosedSession(t *testing.T) {
	f := newFixture(t, session.AuthMethodSSOAssertion)
	f.sessions.session.Status = session.StatusCompleted

	_, err := f.service.RecordProfile(context.Background(), enrollment.ProfileInput{SessionID: sessionID})

	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "SESSION_CLOSED"))
}

// # Biometric

/* TestService_RecordBiometric verifies hashing, device defaults and one-time backup codes. */
func TestService_RecordBiometric(t *testing.T) {
	f := newFixture(t, session.AuthMethodDirectCheck)

	result, err := f.service.RecordBiometric(context.Background(), enrollment.BiometricInput{
		SessionID: sessionID,
		Type:      enrollment.BiometricFingerprint,
		Template:  "minutiae:abc123",
	})
	require.NoError(t, err)

	assert.True(t, result.Flags.BiometricCollected)
	assert.Equal(t, 4, result.NextStep)
	require.Len(t, result.BackupCodes, 10)
	assert.Regexp(t, `^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`, result.BackupCodes[0])

	require.Len(t, f.repository.biometrics, 1)
	stored := f.repository.biometrics[0]
	assert.NotContains(t, string(stored.TemplateHash), "minutiae")
	assert.Len(t, stored.Salt, 16)
	assert.Equal(t, enrollment.DefaultQualityScore, stored.QualityScore)
	assert.True(t, stored.IsPrimary)

	for hash := range f.repository.backupCodes {
		assert.NotContains(t, result.BackupCodes, hash)
	}

	require.Len(t, f.repository.devices, 1)
	for _, device := range f.repository.devices {
		assert.NotEqual(t, "unknown", device.DeviceID)
		assert.Equal(t, "Unknown Device", device.DeviceName)
		assert.Equal(t, "203.0.113.7", device.IPAddress)
	}
}

/* TestService_RecordBiometric_Validation verifies the type whitelist and required template. */
func TestService_RecordBiometric_Validation(t *testing.T) {
	tests := []struct {
		name     string
		kind     enrollment.BiometricType
		template string
		quality  *int
	}{
		{name: "unknown type", kind: "retina_scan", template: "data"},
		{name: "empty template", kind: enrollment.BiometricFaceID},
		{name: "quality out of range", kind: enrollment.BiometricIris, template: "data", quality: intPtr(101)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, session.AuthMethodDirectCheck)

			_, err := f.service.RecordBiometric(context.Background(), enrollment.BiometricInput{
				SessionID:    sessionID,
				Type:         test.kind,
				Template:     test.template,
				QualityScore: test.quality,
			})

			require.Error(t, err)
			assert.True(t, apperr.HasCode(err, codeValidation))
			assert.Empty(t, f.repository.biometrics)
		})
	}
}

/* TestService_VerifyBiometric verifies matching, mismatch counting and the primary replacement. */
func TestService_VerifyBiometric(t *testing.T) {
	f := newFixture(t, session.AuthMethodDirectCheck)
	ctx := context.Background()

	_, err := f.service.RecordBiometric(ctx, enrollment.BiometricInput{SessionID: sessionID, Type: enrollment.BiometricVoice, Template: "first"})
	require.NoError(t, err)
	_, err = f.service.RecordBiometric(ctx, enrollment.BiometricInput{SessionID: sessionID, Type: enrollment.BiometricVoice, Template: "second"})
	require.NoError(t, err)

	err = f.service.VerifyBiometric(ctx, enrollment.BiometricCheckInput{SessionID: sessionID, Template: "first"})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "BIOMETRIC_MISMATCH"))

	require.NoError(t, f.service.VerifyBiometric(ctx, enrollment.BiometricCheckInput{SessionID: sessionID, Template: "second"}))

	current := f.repository.biometrics[1]
	assert.Equal(t, 1, current.FailedAttempts)
	assert.Equal(t, 1, current.VerificationCount)
	assert.False(t, f.repository.biometrics[0].IsPrimary)

	err = f.service.VerifyBiometric(ctx, enrollment.BiometricCheckInput{SessionID: sessionID, Type: enrollment.BiometricPalm, Template: "second"})
	assert.True(t, apperr.HasCode(err, "BIOMETRIC_NOT_FOUND"))
}

/* TestService_RedeemBackupCode verifies single use, normalization and the remaining count. */
func TestService_RedeemBackupCode(t *testing.T) {
	f := newFixture(t, session.AuthMethodDirectCheck)
	ctx := context.Background()

	result, err := f.service.RecordBiometric(ctx, enrollment.BiometricInput{SessionID: sessionID, Type: enrollment.BiometricPalm, Template: "palm"})
	require.NoError(t, err)
	code := result.BackupCodes[0]

	redeemed, err := f.service.RedeemBackupCode(ctx, sessionID, " "+strings.ToLower(strings.ReplaceAll(code, "-", ""))+" ")
	require.NoError(t, err)
	assert.Equal(t, 9, redeemed.Remaining)

	_, err = f.service.RedeemBackupCode(ctx, sessionID, code)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "BACKUP_CODE_INVALID"))

	_, err = f.service.RedeemBackupCode(ctx, sessionID, "short")
	assert.True(t, apperr.HasCode(err, codeValidation))
}

// # Security Questions

/* TestService_SecurityQuestions verifies the offered selection gates recorded answers. */
func TestService_SecurityQuestions(t *testing.T) {
	f := newFixture(t, session.AuthMethodDirectCheck)
	f.repository.catalogue = f.repository.catalogue[:4]
	ctx := context.Background()

	questions, err := f.service.Questions(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, questions, 4)

	members, err := f.redis.SMembers("auth:question_pick:" + sessionID)
	require.NoError(t, err)
	assert.Len(t, members, 4)
	assert.Greater(t, f.redis.TTL("auth:question_pick:"+sessionID), time.Hour)

	answers := append(threeAnswers(), enrollment.Answer{QuestionID: 5, Answer: "Beetle"})
	_, err = f.service.RecordSecurityAnswers(ctx, enrollment.AnswersInput{SessionID: sessionID, Answers: answers})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "QUESTION_NOT_OFFERED"))

	result, err := f.service.RecordSecurityAnswers(ctx, enrollment.AnswersInput{SessionID: sessionID, Answers: threeAnswers()})
	require.NoError(t, err)
	assert.True(t, result.Flags.SecurityQuestionsAnswered)

	require.Len(t, f.repository.answers, 3)
	for _, stored := range f.repository.answers {
		assert.NotContains(t, stored.AnswerHash, "Rex")
	}
}

/* TestService_RecordSecurityAnswers_Validation verifies the minimum count and duplicate rules. */
func TestService_RecordSecurityAnswers_Validation(t *testing.T) {
	tests := []struct {
		name    string
		answers []enrollment.Answer
	}{
		{name: "too few", answers: threeAnswers()[:2]},
		{name: "duplicate question", answers: []enrollment.Answer{{QuestionID: 1, Answer: "a"}, {QuestionID: 1, Answer: "b"}, {QuestionID: 2, Answer: "c"}}},
		{name: "blank answer", answers: []enrollment.Answer{{QuestionID: 1, Answer: "a"}, {QuestionID: 2, Answer: ""}, {QuestionID: 3, Answer: "c"}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, session.AuthMethodDirectCheck)

			_, err := f.service.RecordSecurityAnswers(context.Background(), enrollment.AnswersInput{SessionID: sessionID, Answers: test.answers})

			require.Error(t, err)
			assert.True(t, apperr.HasCode(err, codeValidation))
		})
	}
}

/* TestService_VerifyAnswers verifies normalization and the pass ratio threshold. */
func TestService_VerifyAnswers(t *testing.T) {
	f := newFixture(t, session.AuthMethodDirectCheck)
	ctx := context.Background()

	_, err := f.service.RecordSecurityAnswers(ctx, enrollment.AnswersInput{SessionID: sessionID, Answers: threeAnswers()})
	require.NoError(t, err)

	tests := []struct {
		name     string
		answers  []enrollment.Answer
		verified bool
		correct  int
	}{
		{
			name:     "all correct with different casing and spacing",
			answers:  []enrollment.Answer{{QuestionID: 1, Answer: "  REX "}, {QuestionID: 2, Answer: "são paulo"}, {QuestionID: 3, Answer: "riverside elementary"}},
			verified: true,
			correct:  3,
		},
		{
			name:     "two of three passes",
			answers:  []enrollment.Answer{{QuestionID: 1, Answer: "rex"}, {QuestionID: 2, Answer: "Lisbon"}, {QuestionID: 3, Answer: "Riverside Elementary"}},
			verified: true,
			correct:  2,
		},
		{
			name:     "unanswered count as wrong",
			answers:  []enrollment.Answer{{QuestionID: 1, Answer: "rex"}},
			verified: false,
			correct:  1,
		},
		{
			name:     "repeated answers count once",
			answers:  []enrollment.Answer{{QuestionID: 1, Answer: "rex"}, {QuestionID: 1, Answer: "rex"}},
			verified: false,
			correct:  1,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			check, err := f.service.VerifyAnswers(ctx, sessionID, test.answers)
			require.NoError(t, err)

			assert.Equal(t, test.verified, check.Verified)
			assert.Equal(t, test.correct, check.Correct)
			assert.Equal(t, 2, check.Required)
			assert.Equal(t, 3, check.Total)
		})
	}
}

/* TestService_Profile verifies details are resolved through the session's user. */
func TestService_Profile(t *testing.T) {
	f := newFixture(t, session.AuthMethodDirectCheck)
	ctx := context.Background()

	_, err := f.service.Profile(ctx, sessionID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.service.RecordProfile(ctx, enrollment.ProfileInput{
		SessionID: sessionID,
		Fields:    identity.ProfileFields{FirstName: "Ada", LastName: "Lovelace", Age: intPtr(36), Gender: "female", Country: "GB"},
	})
	require.NoError(t, err)

	details, err := f.service.Profile(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", details.FirstName)
	assert.Equal(t, userID, details.UserID)
}
