// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/votegate/internal/auth"
	"github.com/taibuivan/votegate/internal/platform/constants"
)

func newRouter(f *fixture, failureRedirect string) http.Handler {
	handler := auth.NewHandler(f.service, auth.CookiePolicy{
		Secure:     true,
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		SessionTTL: constants.SessionCookieTTL,
	}, failureRedirect)

	router := chi.NewRouter()
	router.Mount("/identity", handler.IdentityRoutes())
	router.Mount("/sso", handler.SSORoutes())
	router.Mount("/session", handler.SessionRoutes())
	return router
}

func serve(router http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func cookiesByName(recorder *httptest.ResponseRecorder) map[string]*http.Cookie {
	byName := map[string]*http.Cookie{}
	for _, cookie := range recorder.Result().Cookies() {
		byName[cookie.Name] = cookie
	}
	return byName
}

/* TestHandler_CompleteAndLogout verifies the credential cookies are set on completion and cleared on logout. */
func TestHandler_CompleteAndLogout(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, "")

	start, err := f.service.CheckIdentity(context.Background(), auth.CheckInput{Email: directUser.Email})
	require.NoError(t, err)
	f.sessions.verify(start.SessionID)

	completed := serve(router, http.MethodPost, "/session/complete", `{"sessionId":"`+start.SessionID+`"}`)
	require.Equal(t, http.StatusOK, completed.Code, completed.Body.String())

	cookies := cookiesByName(completed)
	require.Contains(t, cookies, constants.CookieAccessToken)
	require.Contains(t, cookies, constants.CookieRefreshToken)
	require.Contains(t, cookies, constants.CookieSessionID)
	assert.True(t, cookies[constants.CookieAccessToken].HttpOnly)
	assert.True(t, cookies[constants.CookieAccessToken].Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookies[constants.CookieAccessToken].SameSite)
	assert.Equal(t, start.SessionID, cookies[constants.CookieSessionID].Value)

	loggedOut := serve(router, http.MethodPost, "/session/logout", "", cookies[constants.CookieSessionID])
	require.Equal(t, http.StatusOK, loggedOut.Code, loggedOut.Body.String())

	for name, cookie := range cookiesByName(loggedOut) {
		assert.Empty(t, cookie.Value, name)
		assert.Negative(t, cookie.MaxAge, name)
	}
}

/* TestHandler_CompleteGateUnmet verifies the missing steps are listed in the error details. */
func TestHandler_CompleteGateUnmet(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, "")

	start, err := f.service.CheckIdentity(context.Background(), auth.CheckInput{Email: directUser.Email})
	require.NoError(t, err)

	recorder := serve(router, http.MethodPost, "/session/complete", `{"sessionId":"`+start.SessionID+`"}`)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	var body struct {
		Code    string `json:"code"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "COMPLETION_GATE_UNMET", body.Code)
	assert.Len(t, body.Details, 2)
	assert.Empty(t, recorder.Result().Cookies())
}

/* TestHandler_SSOCallbackRedirect verifies rejected browser callbacks land on the failure URL. */
func TestHandler_SSOCallbackRedirect(t *testing.T) {
	f := newFixture(t)

	redirecting := newRouter(f, "https://vote.example.com/login?source=sso")
	recorder := serve(redirecting, http.MethodGet, "/sso/callback?token=not-a-token", "")

	require.Equal(t, http.StatusFound, recorder.Code)
	location, err := url.Parse(recorder.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "sso_malformed_token", location.Query().Get("error"))
	assert.Equal(t, "sso", location.Query().Get("source"))

	plain := newRouter(f, "")
	recorder = serve(plain, http.MethodGet, "/sso/callback?token=not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/* TestHandler_SSOCallbackPost verifies a posted token opens a session. */
func TestHandler_SSOCallbackPost(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, "")

	token := f.assertion(t, "4211", "grace@example.com", "n-http")
	recorder := serve(router, http.MethodPost, "/sso/callback", `{"token":"`+token+`"}`)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var body struct {
		Data struct {
			SessionID string `json:"sessionId"`
			IsNewUser bool   `json:"isNewUser"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.True(t, body.Data.IsNewUser)
	assert.Len(t, body.Data.SessionID, 64)
}

/* TestHandler_CheckIdentity_Validation verifies malformed direct-check payloads are rejected. */
func TestHandler_CheckIdentity_Validation(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty", body: `{}`, want: http.StatusBadRequest},
		{name: "bad email", body: `{"email":"not-an-email"}`, want: http.StatusBadRequest},
		{name: "not json", body: `{`, want: http.StatusBadRequest},
		{name: "known", body: `{"email":"ADA@example.com"}`, want: http.StatusOK},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recorder := serve(router, http.MethodPost, "/identity/check", test.body)
			assert.Equal(t, test.want, recorder.Code, recorder.Body.String())
		})
	}
}
