package config

import "time"

type PollConfig interface {
	GetPollInterval() time.Duration
	GetCallTimeout() time.Duration
	GetAccessTokenTTL() time.Duration
}

type Poll struct{}

var _ PollConfig = Poll{}

func (Poll) GetPollInterval() time.Duration {
	return GetDuration("POLL_INTERVAL", 2*time.Second)
}

// GetCallTimeout bounds every CRM and token endpoint call.
func (Poll) GetCallTimeout() time.Duration {
	return GetDuration("CRM_CALL_TIMEOUT", 5*time.Second)
}

// GetAccessTokenTTL caps how long an access token is served from cache.
func (Poll) GetAccessTokenTTL() time.Duration {
	return GetDuration("ACCESS_TOKEN_TTL", 3*time.Second)
}
