package loginsession

import (
	"time"

	"github.com/ranaawaisahmad/utmApp/attribution"
)

// Session is one browser session. Its ID doubles as the user ID the token
// store and poll scheduler are keyed by.
type Session struct {
	ID          string
	Attribution attribution.Attrs
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

type Repo interface {
	Upsert(session Session) error
	Get(sessionID string) (Session, error)
	Touch(sessionID string, at time.Time) error
	SetAttribution(sessionID string, attrs attribution.Attrs) error
	Delete(sessionID string) error
	// DeleteIdleSince removes sessions not seen since cutoff and returns their IDs.
	DeleteIdleSince(cutoff time.Time) ([]string, error)
}
