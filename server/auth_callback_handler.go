package server

import (
	"net/http"
	"time"

	"github.com/ranaawaisahmad/utmApp/server/loginsession"
	"github.com/rs/zerolog/log"
)

// authFlowTTL bounds how long an authorize redirect may take
const authFlowTTL = 10 * time.Minute

// OAuthCallbackHandler completes the authorization code flow started from the
// home page and stores the session's tokens.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("home.html")

	failed := func(w http.ResponseWriter, status int, message string) {
		renderHTML(w, tmpl, status, HomePageData{AppName: s.config.GetAppName(), Error: message})
	}

	return func(w http.ResponseWriter, r *http.Request) {
		state := r.FormValue("state")
		code := r.FormValue("code")

		if errorParam := r.FormValue("error"); errorParam != "" {
			log.Warn().Str("error", errorParam).Str("description", r.FormValue("error_description")).Msg("authorization denied")
			failed(w, http.StatusBadRequest, "Authorization failed: "+errorParam)
			return
		}
		if code == "" || state == "" {
			failed(w, http.StatusBadRequest, "Missing code or state parameter")
			return
		}

		authState, err := s.authFlows.Get(state)
		if err != nil {
			log.Warn().Err(err).Msg("unknown oauth state")
			failed(w, http.StatusBadRequest, "Invalid state parameter")
			return
		}
		// Each state is single use
		if err := s.authFlows.Delete(state); err != nil {
			log.Err(err).Msg("failed to delete oauth state")
		}

		now := s.nowFunc()
		if now.Sub(authState.CreatedAt) > authFlowTTL {
			failed(w, http.StatusBadRequest, "Authorization took too long, please try again")
			return
		}
		sessionID := authState.SessionID
		if cookieSession := s.sessionIDFromCookie(r); cookieSession != "" && cookieSession != sessionID {
			log.Warn().Str("session_id", cookieSession).Msg("oauth state belongs to another session")
			failed(w, http.StatusBadRequest, "Invalid state parameter")
			return
		}
		log := log.With().Str("session_id", sessionID).Logger()

		grant, err := s.exchanger.ExchangeAuthorizationCode(r.Context(), code)
		if err != nil {
			log.Err(err).Msg("authorization code exchange failed")
			failed(w, http.StatusBadGateway, "Login failed, the authorization code could not be exchanged.")
			return
		}
		if err := s.tokens.StoreInitialTokens(sessionID, grant.AccessToken, grant.RefreshToken, grant.ExpiresIn); err != nil {
			log.Err(err).Msg("failed to store tokens")
			failed(w, http.StatusInternalServerError, "Login failed, tokens could not be stored.")
			return
		}

		if _, err := s.loginSessions.Get(sessionID); err != nil {
			if err := s.loginSessions.Upsert(loginsession.Session{ID: sessionID, CreatedAt: now, LastSeenAt: now}); err != nil {
				log.Err(err).Msg("failed to restore session")
			}
		} else if err := s.loginSessions.Touch(sessionID, now); err != nil {
			log.Err(err).Msg("failed to mark session activity")
		}
		if err := s.SetSessionCookie(w, r, sessionID); err != nil {
			log.Err(err).Msg("failed to set session cookie")
		}

		log.Info().Msg("session authorized")
		returnURL := authState.ReturnURL
		if returnURL == "" {
			returnURL = RouteIndex
		}
		http.Redirect(w, r, returnURL, http.StatusSeeOther)
	}
}
