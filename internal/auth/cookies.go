// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/taibuivan/votegate/internal/credential"
	"github.com/taibuivan/votegate/internal/platform/constants"
)

// CookiePolicy controls the credential cookies set on completion and refresh.
type CookiePolicy struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration
}

func (policy CookiePolicy) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     constants.CookiePath,
		MaxAge:   int(ttl / time.Second),
		Secure:   policy.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// setCredentials writes the access and refresh cookies, and the session cookie when sessionID is set.
func (policy CookiePolicy) setCredentials(writer http.ResponseWriter, pair *credential.Pair, sessionID string) {
	http.SetCookie(writer, policy.cookie(constants.CookieAccessToken, pair.AccessToken, policy.AccessTTL))
	http.SetCookie(writer, policy.cookie(constants.CookieRefreshToken, pair.RefreshToken, policy.RefreshTTL))
	if sessionID != "" {
		http.SetCookie(writer, policy.cookie(constants.CookieSessionID, sessionID, policy.SessionTTL))
	}
}

// clear expires all three credential cookies.
func (policy CookiePolicy) clear(writer http.ResponseWriter) {
	for _, name := range []string{constants.CookieAccessToken, constants.CookieRefreshToken, constants.CookieSessionID} {
		cookie := policy.cookie(name, "", 0)
		cookie.MaxAge = -1
		http.SetCookie(writer, cookie)
	}
}

// cookieValue returns the named cookie's value or "".
func cookieValue(request *http.Request, name string) string {
	cookie, err := request.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
