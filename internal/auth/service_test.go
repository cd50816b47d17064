// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/votegate/internal/auth"
	"github.com/taibuivan/votegate/internal/credential"
	"github.com/taibuivan/votegate/internal/identity"
	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/sec"
	"github.com/taibuivan/votegate/internal/session"
	"github.com/taibuivan/votegate/internal/sso"
	"github.com/taibuivan/votegate/pkg/pointer"
)

const sharedSecret = "0f4e3b9d2c7a61858f0e2d1c3b4a5968"

// # Fakes

type fakeIdentities struct {
	users       map[string]*identity.User
	details     map[string]*identity.Details
	roles       map[string]string
	activated   []string
	activateErr error
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{
		users:   map[string]*identity.User{},
		details: map[string]*identity.Details{},
		roles:   map[string]string{},
	}
}

func (identities *fakeIdentities) add(user *identity.User) {
	identities.users[user.ID] = user
}

func (identities *fakeIdentities) ResolveByContact(_ context.Context, email, phone string) (*identity.User, error) {
	for _, user := range identities.users {
		if (email != "" && user.Email == email) || (phone != "" && user.Phone == phone) {
			return user, nil
		}
	}
	return nil, apperr.NotFound("User").WithCode("USER_NOT_FOUND")
}

func (identities *fakeIdentities) IsFirstTime(_ context.Context, userID string) (bool, error) {
	_, ok := identities.details[userID]
	return !ok, nil
}

func (identities *fakeIdentities) Reconcile(_ context.Context, external identity.ExternalIdentity) (*identity.User, bool, error) {
	for _, user := range identities.users {
		if user.Email == external.Email || user.ExternalSubject == external.Subject {
			return user, false, nil
		}
	}
	user := &identity.User{
		ID:              "0190f5e2-0000-7000-8000-00000000beef",
		Email:           external.Email,
		ExternalSubject: external.Subject,
		IsActivated:     true,
		IsApproved:      true,
	}
	identities.add(user)
	return user, true, nil
}

func (identities *fakeIdentities) FillProfile(_ context.Context, userID, sessionID string, fields identity.ProfileFields, _ string) error {
	if _, ok := identities.details[userID]; ok {
		return nil
	}
	identities.details[userID] = &identity.Details{
		UserID:    userID,
		SessionID: sessionID,
		FirstName: fields.FirstName,
		LastName:  fields.LastName,
		Age:       fields.Age,
		Gender:    fields.Gender,
		Country:   fields.Country,
		Timezone:  identity.DefaultTimezone,
		Language:  identity.DefaultLanguage,
	}
	return nil
}

func (identities *fakeIdentities) AssignDefaultRole(_ context.Context, userID, source string) error {
	if _, ok := identities.roles[userID]; !ok {
		identities.roles[userID] = source
	}
	return nil
}

func (identities *fakeIdentities) MarkActivated(_ context.Context, userID string) error {
	if identities.activateErr != nil {
		return identities.activateErr
	}
	identities.activated = append(identities.activated, userID)
	return nil
}

func (identities *fakeIdentities) Details(_ context.Context, userID string) (*identity.Details, error) {
	details, ok := identities.details[userID]
	if !ok {
		return nil, apperr.NotFound("User details")
	}
	return details, nil
}

func (identities *fakeIdentities) Profile(_ context.Context, userID string) (*identity.Profile, error) {
	user, ok := identities.users[userID]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	clone := *user
	return &identity.Profile{User: &clone, Details: identities.details[userID], Roles: []string{"Voter"}}, nil
}

type fakeSessions struct {
	sessions map[string]*session.Session
	counter  int
	now      time.Time
}

func (sessions *fakeSessions) Create(_ context.Context, input session.CreateInput) (*session.Session, error) {
	sessions.counter++
	id := sessionIDFor(sessions.counter)
	created := &session.Session{
		ID:              id,
		UserID:          input.UserID,
		IsFirstTime:     input.IsFirstTime,
		StepNumber:      session.StepCheck,
		AuthMethod:      input.AuthMethod,
		ExternalSubject: input.ExternalSubject,
		Status:          session.StatusActive,
		Client:          input.Client,
		CreatedAt:       sessions.now,
		ExpiresAt:       sessions.now.Add(24 * time.Hour),
	}
	sessions.sessions[id] = created
	clone := *created
	return &clone, nil
}

func sessionIDFor(n int) string {
	const hex = "0123456789abcdef"
	id := make([]byte, 64)
	for i := range id {
		id[i] = hex[(n+i)%16]
	}
	return string(id)
}

func (sessions *fakeSessions) Get(_ context.Context, id string) (*session.Session, error) {
	current, ok := sessions.sessions[id]
	if !ok {
		return nil, apperr.NotFound("Session")
	}
	clone := *current
	clone.Status = clone.EffectiveStatus(sessions.now)
	return &clone, nil
}

func (sessions *fakeSessions) AdvanceStep(ctx context.Context, id string, target int) (*session.Session, error) {
	current, err := sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if target < current.StepNumber {
		return nil, apperr.InvalidTransition("backwards")
	}
	sessions.sessions[id].StepNumber = target
	return sessions.Get(ctx, id)
}

func (sessions *fakeSessions) MarkPrefilled(_ context.Context, id string) error {
	sessions.sessions[id].Prefilled = true
	return nil
}

func (sessions *fakeSessions) EvaluateCompletionGate(ctx context.Context, id string) (*session.Gate, error) {
	current, err := sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	gate := &session.Gate{Status: current.Status}
	if !current.Flags.EmailVerified {
		gate.Missing = append(gate.Missing, session.FlagEmailVerified.String())
	}
	if !current.Flags.SMSVerified {
		gate.Missing = append(gate.Missing, session.FlagSMSVerified.String())
	}
	if current.IsFirstTime && !current.Flags.BiometricCollected {
		gate.EnrollmentIncomplete = append(gate.EnrollmentIncomplete, session.FlagBiometricCollected.String())
	}
	gate.Eligible = current.Status == session.StatusActive && len(gate.Missing) == 0
	return gate, nil
}

func (sessions *fakeSessions) Complete(_ context.Context, id string) error {
	current := sessions.sessions[id]
	if current.Status != session.StatusActive {
		return apperr.Conflict("Session is already completed or closed").WithCode("ALREADY_COMPLETED")
	}
	current.Status = session.StatusCompleted
	return nil
}

func (sessions *fakeSessions) Terminate(_ context.Context, id string) (*session.TerminateResult, error) {
	current, ok := sessions.sessions[id]
	if !ok {
		return nil, apperr.NotFound("Session")
	}
	result := &session.TerminateResult{CredentialsRevoked: 1}
	if current.Status == session.StatusActive {
		current.Status = session.StatusLoggedOut
		result.SessionsClosed = 1
	}
	return result, nil
}

func (sessions *fakeSessions) TerminateUser(_ context.Context, userID string) (*session.TerminateResult, error) {
	result := &session.TerminateResult{}
	for _, current := range sessions.sessions {
		if current.UserID == userID && current.Status == session.StatusActive {
			current.Status = session.StatusLoggedOut
			result.SessionsClosed++
		}
	}
	return result, nil
}

func (sessions *fakeSessions) verify(id string) {
	sessions.sessions[id].Flags = session.Flags{EmailVerified: true, SMSVerified: true}
}

type fakeCredentials struct {
	issued   []string
	issueErr error
}

func (credentials *fakeCredentials) Issue(_ context.Context, userID, sessionID string) (*credential.Pair, error) {
	if credentials.issueErr != nil {
		return nil, credentials.issueErr
	}
	credentials.issued = append(credentials.issued, sessionID)
	return &credential.Pair{AccessToken: "access-" + userID, RefreshToken: "refresh-" + userID, TokenType: "Bearer"}, nil
}

func (credentials *fakeCredentials) Refresh(_ context.Context, token string) (*credential.Pair, error) {
	if token != "refresh-good" {
		return nil, apperr.Unauthorized("Invalid refresh token")
	}
	return &credential.Pair{AccessToken: "access-2", RefreshToken: "refresh-2", TokenType: "Bearer"}, nil
}

func (credentials *fakeCredentials) VerifyAccess(_ context.Context, token string) (*sec.AuthClaims, error) {
	if token == "access-"+directUser.ID {
		return &sec.AuthClaims{UserID: directUser.ID}, nil
	}
	return nil, apperr.Unauthorized("Invalid access token")
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// # Fixture

var directUser = identity.User{
	ID:    "0190f5e2-0000-7000-8000-000000000001",
	Email: "ada@example.com",
	Phone: "+15550109999",
}

type fixture struct {
	service     *auth.Service
	identities  *fakeIdentities
	sessions    *fakeSessions
	credentials *fakeCredentials
	verifier    *sso.Verifier
	redis       *miniredis.Miniredis
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	verifier, err := sso.NewVerifier(sharedSecret, 0, sso.NewReplayGuard(client))
	require.NoError(t, err)
	verifier = verifier.WithClock(func() time.Time { return now })

	user := directUser
	f := &fixture{
		identities:  newFakeIdentities(),
		sessions:    &fakeSessions{sessions: map[string]*session.Session{}, now: now},
		credentials: &fakeCredentials{},
		verifier:    verifier,
		redis:       server,
		now:         now,
	}
	f.identities.add(&user)

	f.service = auth.NewService(auth.Dependencies{
		Identities:  f.identities,
		Sessions:    f.sessions,
		Credentials: f.credentials,
		Assertions:  verifier,
		Transactor:  passthroughTx{},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return f
}

func (f *fixture) assertion(t *testing.T, subject, email, nonce string) string {
	t.Helper()
	token, err := f.verifier.Sign(sso.Claims{
		UserID:    sso.FlexString(subject),
		Email:     email,
		FirstName: "Grace",
		LastName:  "Hopper",
		Age:       sso.Age(45),
		Country:   "US",
		ExpiresAt: f.now.Add(5 * time.Minute).Unix(),
		Nonce:     nonce,
	})
	require.NoError(t, err)
	return token
}

// # Direct Check

/* TestService_CheckIdentity verifies resolution outcomes of the direct check. */
func TestService_CheckIdentity(t *testing.T) {
	tests := []struct {
		name    string
		input   auth.CheckInput
		banned  bool
		wantErr string
	}{
		{name: "by email", input: auth.CheckInput{Email: "ada@example.com"}},
		{name: "by phone", input: auth.CheckInput{Phone: "+15550109999"}},
		{name: "unknown", input: auth.CheckInput{Email: "nobody@example.com"}, wantErr: "USER_NOT_FOUND"},
		{name: "banned", input: auth.CheckInput{Email: "ada@example.com"}, banned: true, wantErr: "USER_BANNED"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			f.identities.users[directUser.ID].IsBanned = test.banned

			start, err := f.service.CheckIdentity(context.Background(), test.input)

			if test.wantErr != "" {
				require.Error(t, err)
				assert.True(t, apperr.HasCode(err, test.wantErr), "got %v", err)
				assert.Empty(t, f.sessions.sessions)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, directUser.ID, start.UserID)
			assert.True(t, start.IsFirstTime)
			assert.Equal(t, 2, start.NextStep)
			assert.Equal(t, session.AuthMethodDirectCheck, f.sessions.sessions[start.SessionID].AuthMethod)
		})
	}
}

/* TestService_CheckIdentity_ReturningUser verifies a user with details is not first-time. */
func TestService_CheckIdentity_ReturningUser(t *testing.T) {
	f := newFixture(t)
	f.identities.details[directUser.ID] = &identity.Details{UserID: directUser.ID}

	start, err := f.service.CheckIdentity(context.Background(), auth.CheckInput{Email: directUser.Email})

	require.NoError(t, err)
	assert.False(t, start.IsFirstTime)
}

// # SSO

/* TestService_SSOCallback_ProvisionsAndPrefills verifies auto-provisioning and the prefill payload. */
func TestService_SSOCallback_ProvisionsAndPrefills(t *testing.T) {
	f := newFixture(t)

	start, err := f.service.SSOCallback(context.Background(), f.assertion(t, "4211", "grace@example.com", "n-1"), session.ClientMeta{IPAddress: "198.51.100.4"})
	require.NoError(t, err)

	assert.True(t, start.IsNewUser)
	assert.True(t, start.IsFirstTime)
	require.NotNil(t, start.PrefillData)
	assert.Equal(t, "Grace", start.PrefillData.FirstName)
	assert.Equal(t, pointer.To(45), start.PrefillData.Age)
	assert.Equal(t, identity.DefaultTimezone, start.PrefillData.Timezone)
	assert.Equal(t, identity.DefaultLanguage, start.PrefillData.Language)

	opened := f.sessions.sessions[start.SessionID]
	assert.Equal(t, session.AuthMethodSSOAssertion, opened.AuthMethod)
	assert.Equal(t, "4211", opened.ExternalSubject)
	assert.True(t, opened.Prefilled)
	assert.Equal(t, identity.RoleSourceSSO, f.identities.roles[start.UserID])
}

/* TestService_SSOCallback_BareAssertionKeepsFirstTime verifies an assertion without profile attributes writes no profile. */
func TestService_SSOCallback_BareAssertionKeepsFirstTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.verifier.Sign(sso.Claims{
		UserID:    sso.FlexString("5150"),
		Email:     directUser.Email,
		ExpiresAt: f.now.Add(5 * time.Minute).Unix(),
		Nonce:     "n-bare",
	})
	require.NoError(t, err)

	start, err := f.service.SSOCallback(ctx, token, session.ClientMeta{})
	require.NoError(t, err)

	assert.True(t, start.IsFirstTime)
	assert.False(t, f.sessions.sessions[start.SessionID].Prefilled)
	assert.NotContains(t, f.identities.details, start.UserID)
	assert.Equal(t, identity.RoleSourceSSO, f.identities.roles[start.UserID])

	again, err := f.service.CheckIdentity(ctx, auth.CheckInput{Email: directUser.Email})
	require.NoError(t, err)
	assert.True(t, again.IsFirstTime)
}

/* TestService_SSOCallback_Rejections verifies replay, tampering and a banned reconciled user. */
func TestService_SSOCallback_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := f.assertion(t, "4211", "grace@example.com", "n-2")
	_, err := f.service.SSOCallback(ctx, token, session.ClientMeta{})
	require.NoError(t, err)

	_, err = f.service.SSOCallback(ctx, token, session.ClientMeta{})
	assert.True(t, apperr.HasCode(err, "SSO_REPLAYED"))

	_, err = f.service.SSOCallback(ctx, strings.SplitN(token, ".", 2)[0]+"."+strings.Repeat("0", 64), session.ClientMeta{})
	assert.True(t, apperr.HasCode(err, "SSO_INVALID_SIGNATURE"))

	_, err = f.service.SSOCallback(ctx, "", session.ClientMeta{})
	assert.True(t, apperr.HasCode(err, "SSO_MALFORMED_TOKEN"))

	f.identities.users[directUser.ID].IsBanned = true
	_, err = f.service.SSOCallback(ctx, f.assertion(t, "7001", directUser.Email, "n-3"), session.ClientMeta{})
	assert.True(t, apperr.HasCode(err, "USER_BANNED"))
}

/* TestService_CheckToken verifies the token check never consumes the nonce. */
func TestService_CheckToken(t *testing.T) {
	f := newFixture(t)
	token := f.assertion(t, "4211", "grace@example.com", "n-4")

	for range 2 {
		check := f.service.CheckToken(token)
		assert.True(t, check.Valid)
		assert.Equal(t, "4211", check.Claims.Subject)
	}

	_, err := f.service.SSOCallback(context.Background(), token, session.ClientMeta{})
	require.NoError(t, err)

	check := f.service.CheckToken("garbage")
	assert.False(t, check.Valid)
	assert.Equal(t, "SSO_MALFORMED_TOKEN", check.Code)
}

// # Completion

/* TestService_Complete verifies the gate, single completion and best-effort activation. */
func TestService_Complete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.service.CheckIdentity(ctx, auth.CheckInput{Email: directUser.Email})
	require.NoError(t, err)

	_, err = f.service.Complete(ctx, start.SessionID)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "COMPLETION_GATE_UNMET"))
	assert.Len(t, apperr.As(err).Details, 2)
	assert.Empty(t, f.credentials.issued)

	f.sessions.verify(start.SessionID)

	completion, err := f.service.Complete(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "access-"+directUser.ID, completion.Credentials.AccessToken)
	assert.True(t, completion.User.User.IsActivated)
	assert.Equal(t, []string{session.FlagBiometricCollected.String()}, completion.EnrollmentIncomplete)
	assert.Equal(t, session.StatusCompleted, f.sessions.sessions[start.SessionID].Status)

	_, err = f.service.Complete(ctx, start.SessionID)
	assert.True(t, apperr.HasCode(err, "ALREADY_COMPLETED"))
	assert.Len(t, f.credentials.issued, 1)
}

/* TestService_Complete_ActivationFailureIsNotFatal verifies completion survives an activation error. */
func TestService_Complete_ActivationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.identities.activateErr = errors.New("database unavailable")
	ctx := context.Background()

	start, err := f.service.CheckIdentity(ctx, auth.CheckInput{Email: directUser.Email})
	require.NoError(t, err)
	f.sessions.verify(start.SessionID)

	completion, err := f.service.Complete(ctx, start.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, completion.Credentials)
	assert.False(t, completion.User.User.IsActivated)
}

/* TestService_Complete_IssueFailure verifies a failed issuance surfaces and issues nothing. */
func TestService_Complete_IssueFailure(t *testing.T) {
	f := newFixture(t)
	f.credentials.issueErr = errors.New("signing failed")
	ctx := context.Background()

	start, err := f.service.CheckIdentity(ctx, auth.CheckInput{Email: directUser.Email})
	require.NoError(t, err)
	f.sessions.verify(start.SessionID)

	_, err = f.service.Complete(ctx, start.SessionID)
	require.Error(t, err)
	assert.Empty(t, f.identities.activated)
}

/* TestService_Complete_Expired verifies an expired session cannot complete. */
func TestService_Complete_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.service.CheckIdentity(ctx, auth.CheckInput{Email: directUser.Email})
	require.NoError(t, err)
	f.sessions.verify(start.SessionID)
	f.sessions.now = f.now.Add(25 * time.Hour)

	_, err = f.service.Complete(ctx, start.SessionID)
	assert.True(t, apperr.HasCode(err, "SESSION_EXPIRED"))
}

// # Logout

/* TestService_Logout verifies the accepted logout selectors. */
func TestService_Logout(t *testing.T) {
	tests := []struct {
		name       string
		input      func(sessionID string) auth.LogoutInput
		wantClosed int64
		wantErr    string
	}{
		{
			name:       "by session",
			input:      func(sessionID string) auth.LogoutInput { return auth.LogoutInput{SessionID: sessionID} },
			wantClosed: 1,
		},
		{
			name:       "by user",
			input:      func(string) auth.LogoutInput { return auth.LogoutInput{UserID: directUser.ID} },
			wantClosed: 2,
		},
		{
			name:       "by bearer",
			input:      func(string) auth.LogoutInput { return auth.LogoutInput{AccessToken: "access-" + directUser.ID} },
			wantClosed: 2,
		},
		{
			name:    "invalid bearer only",
			input:   func(string) auth.LogoutInput { return auth.LogoutInput{AccessToken: "forged"} },
			wantErr: "VALIDATION_ERROR",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			first, err := f.service.CheckIdentity(ctx, auth.CheckInput{Email: directUser.Email})
			require.NoError(t, err)
			_, err = f.service.CheckIdentity(ctx, auth.CheckInput{Email: directUser.Email})
			require.NoError(t, err)

			result, err := f.service.Logout(ctx, test.input(first.SessionID))

			if test.wantErr != "" {
				assert.True(t, apperr.HasCode(err, test.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.wantClosed, result.SessionsClosed)
			assert.Equal(t, session.StatusLoggedOut, f.sessions.sessions[first.SessionID].Status)
		})
	}
}

/* TestService_Refresh verifies the missing-token guard and delegation. */
func TestService_Refresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Refresh(ctx, "")
	assert.True(t, apperr.HasCode(err, "REFRESH_TOKEN_MISSING"))

	pair, err := f.service.Refresh(ctx, "refresh-good")
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", pair.RefreshToken)
}
