package token

import (
	"sync"
	"time"
)

// AccessTokenCache holds short-lived access tokens keyed by user id.
type AccessTokenCache interface {
	Set(userID, accessToken string, exp time.Time)
	// Get returns the token only while now is before its expiry.
	Get(userID string, now time.Time) (string, bool)
	Delete(userID string)
	Cleanup(now time.Time) // Remove expired entries
}

type cachedAccessToken struct {
	token string
	exp   time.Time
}

// InMemoryAccessTokenCache is a simple in-memory implementation
type InMemoryAccessTokenCache struct {
	tokens map[string]cachedAccessToken
	mu     sync.RWMutex
}

func NewInMemoryAccessTokenCache() *InMemoryAccessTokenCache {
	return &InMemoryAccessTokenCache{
		tokens: make(map[string]cachedAccessToken),
	}
}

func (c *InMemoryAccessTokenCache) Set(userID, accessToken string, exp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[userID] = cachedAccessToken{token: accessToken, exp: exp}
}

func (c *InMemoryAccessTokenCache) Get(userID string, now time.Time) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, exists := c.tokens[userID]
	if !exists || !now.Before(entry.exp) {
		return "", false
	}
	return entry.token, true
}

func (c *InMemoryAccessTokenCache) Delete(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, userID)
}

func (c *InMemoryAccessTokenCache) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for userID, entry := range c.tokens {
		if !now.Before(entry.exp) {
			delete(c.tokens, userID)
		}
	}
}
