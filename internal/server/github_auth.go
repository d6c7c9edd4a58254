package server

import (
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GET /api/github/auth
// Redirects the browser to GitHub's authorize page with a single-use state.
func (s *Server) handleGitHubAuth(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.OAuthConfigured() {
		s.writeError(w, http.StatusBadRequest, "github oauth not configured")
		return
	}
	state := uuid.NewString()
	s.states.Put(state)
	SetStateCookie(w, state, s.cfg.CookieSecure)
	http.Redirect(w, r, s.oauthCfg.AuthCodeURL(state), http.StatusFound)
}

// GET /api/github/callback?code=...&state=...
// Exchanges the code and hands the access token to the frontend. The token is not kept.
func (s *Server) handleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.OAuthConfigured() {
		s.writeError(w, http.StatusBadRequest, "github oauth not configured")
		return
	}
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		s.writeError(w, http.StatusBadRequest, "missing state or code")
		return
	}
	cookieState, err := GetStateCookie(r)
	if err != nil || cookieState != state || !s.states.Consume(state) {
		s.writeError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	ClearStateCookie(w, s.cfg.CookieSecure)

	tok, err := s.oauthCfg.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Warn("oauth token exchange failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	q := url.Values{}
	q.Set("token", tok.AccessToken)
	http.Redirect(w, r, s.cfg.FrontendURL+"?"+q.Encode(), http.StatusFound)
}
