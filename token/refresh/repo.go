package refresh

import (
	"time"
)

// StoredRefreshToken is the long-lived credential held for one session.
// It is replaced, never appended to, whenever the provider rotates it.
type StoredRefreshToken struct {
	UserID     string    // Session identity the token belongs to
	Token      string    // Refresh token as issued by the CRM
	LastSeenAt time.Time // Last time the owning session was active
}

// Repo manages storage of refresh tokens keyed by session identity.
// Implementations must be safe for concurrent use.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Get(userID string) (*StoredRefreshToken, error)
	Delete(userID string) error
	// Touch records session activity without changing the token.
	Touch(userID string, at time.Time) error
	// DeleteIdleSince removes tokens whose session has not been seen since
	// cutoff and returns the affected user ids.
	DeleteIdleSince(cutoff time.Time) ([]string, error)
}
