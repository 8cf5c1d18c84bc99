package config

import "time"

type SessionConfig interface {
	GetSessionSecret() string
	GetMaxSessionAge() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionSecret signs session cookies. An empty value makes the server
// generate a per-process secret.
func (Session) GetSessionSecret() string {
	return GetEnv("SESSION_SECRET", "")
}

// GetMaxSessionAge is how long an idle session keeps its refresh token.
func (Session) GetMaxSessionAge() time.Duration {
	return GetDuration("SESSION_MAX_AGE", 30*time.Minute)
}
