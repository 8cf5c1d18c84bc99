package server

import (
	"html/template"
	"net/http"

	"github.com/google/uuid"
	"github.com/ranaawaisahmad/utmApp/attribution"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/ranaawaisahmad/utmApp/poll"
	"github.com/ranaawaisahmad/utmApp/server/authflowrepo"
	"github.com/rs/zerolog/log"
)

type attributionRow struct {
	Name  string
	Value string
}

// HomePageData contains data for rendering the home page
type HomePageData struct {
	AppName      string
	Authorized   bool
	AuthorizeURL string
	Error        string
	Status       poll.Status
	Attribution  []attributionRow
}

// IndexHandler captures attribution from the landing URL. Authorized sessions
// get their properties provisioned and their poll loop started; others get
// the authorize link.
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("home.html")

	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionIDFromContext(r.Context())
		log := log.With().Str("session_id", sessionID).Logger()

		if attrs := attribution.FromValues(r.URL.Query()); !attrs.Empty() {
			if err := s.loginSessions.SetAttribution(sessionID, attrs); err != nil {
				log.Err(err).Msg("failed to store attribution")
			}
		}

		data := HomePageData{AppName: s.config.GetAppName()}

		if s.tokens.IsAuthorized(sessionID) {
			accessToken, err := s.tokens.GetAccessToken(r.Context(), sessionID)
			switch {
			case apperrors.IsAuthError(err):
				log.Warn().Err(err).Msg("session lost its authorization")
			case err != nil:
				log.Err(err).Msg("failed to get access token")
				data.Error = "Could not reach HubSpot, try again shortly."
				data.Authorized = true
			default:
				data.Authorized = true
				if s.provisioner != nil {
					if err := s.provisioner.Ensure(r.Context(), sessionID, accessToken); err != nil {
						log.Err(err).Msg("failed to provision attribution properties")
					}
				}
				s.scheduler.Start(sessionID)
			}
		}

		if data.Authorized {
			data.Status, _ = s.scheduler.Status(sessionID)
			data.Attribution = s.attributionRows(sessionID)
		} else {
			authorizeURL, err := s.beginAuthFlow(sessionID)
			if err != nil {
				log.Err(err).Msg("failed to start authorization")
				http.Error(w, "500 - Failed to start authorization", http.StatusInternalServerError)
				return
			}
			data.AuthorizeURL = authorizeURL
		}

		renderHTML(w, tmpl, http.StatusOK, data)
	}
}

func (s *Server) beginAuthFlow(sessionID string) (string, error) {
	state := uuid.NewString()
	err := s.authFlows.Upsert(state, &authflowrepo.AuthFlowState{
		SessionID: sessionID,
		ReturnURL: RouteIndex,
		CreatedAt: s.nowFunc(),
	})
	if err != nil {
		return "", err
	}
	return s.exchanger.AuthCodeURL(state), nil
}

func (s *Server) attributionRows(sessionID string) []attributionRow {
	attrs := s.attribution.Attribution(sessionID)
	rows := make([]attributionRow, 0, len(attribution.Dimensions))
	for _, d := range attribution.Dimensions {
		rows = append(rows, attributionRow{Name: d.QueryParam(), Value: attrs.Get(d)})
	}
	return rows
}

func mustParseTemplate(name string) *template.Template {
	tmpl, err := ParseTemplate(name)
	if err != nil {
		panic("Failed to parse " + name + " template: " + err.Error())
	}
	return tmpl
}

func renderHTML(w http.ResponseWriter, tmpl *template.Template, status int, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		log.Err(err).Str("template", tmpl.Name()).Msg("failed to render template")
	}
}
