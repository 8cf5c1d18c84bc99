package server

import (
	"encoding/json"
	"net/http"

	"github.com/ranaawaisahmad/utmApp/attribution"
	"github.com/ranaawaisahmad/utmApp/poll"
	"github.com/rs/zerolog/log"
)

// StatusResponse is the JSON body of the status endpoint
type StatusResponse struct {
	SessionID   string            `json:"session_id"`
	Authorized  bool              `json:"authorized"`
	Attribution map[string]string `json:"attribution"`
	Poll        *poll.Status      `json:"poll,omitempty"`
}

// StatusHandler reports the caller's authorization and poll state.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionIDFromContext(r.Context())

		resp := StatusResponse{
			SessionID:   sessionID,
			Authorized:  s.tokens.IsAuthorized(sessionID),
			Attribution: make(map[string]string),
		}
		attrs := s.attribution.Attribution(sessionID)
		for _, d := range attribution.Dimensions {
			resp.Attribution[d.QueryParam()] = attrs.Get(d)
		}
		if st, ok := s.scheduler.Status(sessionID); ok {
			resp.Poll = &st
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
