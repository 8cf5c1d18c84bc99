package authflowrepo

import "time"

// AuthFlowState binds an OAuth state value to the session that started the
// authorize redirect.
type AuthFlowState struct {
	SessionID string
	ReturnURL string
	CreatedAt time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	Get(state string) (*AuthFlowState, error)
	Delete(state string) error
	DeleteCreatedBefore(cutoff time.Time) (int, error)
}
