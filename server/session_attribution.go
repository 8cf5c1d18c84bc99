package server

import (
	"github.com/ranaawaisahmad/utmApp/attribution"
	"github.com/ranaawaisahmad/utmApp/server/loginsession"
)

// SessionAttribution serves the attribution values captured for each session
// to the poll loops.
type SessionAttribution struct {
	sessions loginsession.Repo
	fallback attribution.Attrs
}

// NewSessionAttribution falls back to the attribution parsed from
// defaultLandingURL for sessions that arrived without utm_* parameters.
func NewSessionAttribution(sessions loginsession.Repo, defaultLandingURL string) *SessionAttribution {
	return &SessionAttribution{
		sessions: sessions,
		fallback: attribution.Parse(defaultLandingURL),
	}
}

func (a *SessionAttribution) Attribution(sessionID string) attribution.Attrs {
	session, err := a.sessions.Get(sessionID)
	if err == nil && !session.Attribution.Empty() {
		return session.Attribution
	}
	return a.fallback
}
