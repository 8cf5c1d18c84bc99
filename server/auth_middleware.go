package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/ranaawaisahmad/utmApp/server/loginsession"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySessionID stores the caller's session ID
const ContextKeySessionID ContextKey = "session_id"

// SessionMiddleware resolves the caller's session from its cookie and marks
// it as seen. With create set, callers without a valid session get a new one;
// otherwise they receive 401.
func (s *Server) SessionMiddleware(create bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			now := s.nowFunc()
			sessionID := s.sessionIDFromCookie(r)

			if sessionID != "" {
				if err := s.loginSessions.Touch(sessionID, now); err != nil {
					sessionID = ""
				}
			}

			if sessionID == "" {
				if !create {
					writeJSONError(w, "unauthorized", apperrors.ErrSessionNotFound.Error(), http.StatusUnauthorized)
					return
				}
				sessionID = uuid.NewString()
				if err := s.loginSessions.Upsert(loginsession.Session{ID: sessionID, CreatedAt: now, LastSeenAt: now}); err != nil {
					log.Err(err).Msg("failed to create session")
					http.Error(w, "500 - Failed to create session", http.StatusInternalServerError)
					return
				}
			}

			if err := s.SetSessionCookie(w, r, sessionID); err != nil {
				log.Err(err).Str("session_id", sessionID).Msg("failed to set session cookie")
			}
			if err := s.tokens.Touch(sessionID); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
				log.Err(err).Str("session_id", sessionID).Msg("failed to mark token activity")
			}

			ctx := context.WithValue(r.Context(), ContextKeySessionID, sessionID)
			next(w, r.WithContext(ctx))
		}
	}
}

func sessionIDFromContext(ctx context.Context) string {
	sessionID, _ := ctx.Value(ContextKeySessionID).(string)
	return sessionID
}
