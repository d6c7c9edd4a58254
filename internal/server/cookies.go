package server

import (
	"net/http"
	"time"
)

const (
	// StateCookieName binds an OAuth state to the browser that started the flow
	StateCookieName = "testpilot_oauth_state"
	// StateCookieMaxAge matches the server-side state TTL (10 minutes)
	StateCookieMaxAge = 10 * time.Minute
)

// SetStateCookie sets an HTTP-only cookie carrying the OAuth state.
func SetStateCookie(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/api/github",
		MaxAge:   int(StateCookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// ClearStateCookie removes the OAuth state cookie.
func ClearStateCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/api/github",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// GetStateCookie reads the OAuth state from the cookie.
func GetStateCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(StateCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
