package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/ranaawaisahmad/utmApp/oauth"
	"github.com/ranaawaisahmad/utmApp/token/refresh"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Refresher mints a new grant from a refresh token.
type Refresher interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (oauth.Grant, error)
}

// RefreshObserver is told the outcome ("success" or "failure") of every
// refresh exchange.
type RefreshObserver func(outcome string)

// Manager issues valid access tokens per user. Refresh tokens live in a
// refresh.Repo; access tokens live in a short-lived cache and are re-minted
// from the refresh token once they expire. Concurrent misses for the same user
// share a single refresh exchange.
type Manager struct {
	refreshRepo refresh.Repo
	refresher   Refresher
	cache       AccessTokenCache
	flights     singleflight.Group
	ttl         time.Duration
	nowFunc     func() time.Time
	logger      zerolog.Logger
	observe     RefreshObserver

	// generations counts token replacements per user. A refresh only commits
	// or forgets when the generation it started from is still current.
	mu          sync.Mutex
	generations map[string]uint64
}

type ManagerOption func(*Manager)

// WithAccessTokenTTL caps how long any access token is served from cache.
func WithAccessTokenTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithAccessTokenCache(cache AccessTokenCache) ManagerOption {
	return func(m *Manager) {
		m.cache = cache
	}
}

func WithRefreshObserver(observe RefreshObserver) ManagerOption {
	return func(m *Manager) {
		m.observe = observe
	}
}

func New(repo refresh.Repo, refresher Refresher, options ...ManagerOption) *Manager {
	m := &Manager{
		refreshRepo: repo,
		refresher:   refresher,
		logger:      zerolog.Nop(),
		generations: make(map[string]uint64),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.cache == nil {
		m.cache = NewInMemoryAccessTokenCache()
	}
	if m.ttl == 0 {
		m.ttl = 3 * time.Second
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// StoreInitialTokens records the result of the authorization code exchange,
// replacing anything held for userID.
func (m *Manager) StoreInitialTokens(userID, accessToken, refreshToken string, ttl time.Duration) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}
	if refreshToken == "" {
		return apperrors.ErrNoRefreshToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[userID]++

	now := m.nowFunc()
	if err := m.refreshRepo.Upsert(&refresh.StoredRefreshToken{
		UserID:     userID,
		Token:      refreshToken,
		LastSeenAt: now,
	}); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if accessToken != "" {
		m.cache.Set(userID, accessToken, now.Add(m.cacheTTL(ttl)))
	} else {
		m.cache.Delete(userID)
	}
	return nil
}

// IsAuthorized reports whether a refresh token is held for userID.
func (m *Manager) IsAuthorized(userID string) bool {
	rt, err := m.refreshRepo.Get(userID)
	return err == nil && rt != nil && rt.Token != ""
}

// GetAccessToken returns a cached unexpired access token or refreshes one.
// It fails with ErrNoRefreshToken when the user never authorized, and with
// ErrRefreshFailed (after forgetting the user) when the provider rejects the
// refresh token.
func (m *Manager) GetAccessToken(ctx context.Context, userID string) (string, error) {
	if tok, ok := m.cache.Get(userID, m.nowFunc()); ok {
		return tok, nil
	}

	// The flight outlives any single caller, so it must not inherit one
	// caller's cancellation. The exchanger bounds the call itself.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := m.flights.Do(userID, func() (any, error) {
		if tok, ok := m.cache.Get(userID, m.nowFunc()); ok {
			return tok, nil
		}
		return m.refresh(flightCtx, userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	gen := m.generations[userID]
	stored, err := m.refreshRepo.Get(userID)
	m.mu.Unlock()
	if apperrors.Is(err, apperrors.ErrNotFound) || (err == nil && stored.Token == "") {
		return "", fmt.Errorf("user %s: %w", userID, apperrors.ErrNoRefreshToken)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load refresh token: %w", err)
	}

	grant, err := m.refresher.ExchangeRefreshToken(ctx, stored.Token)

	m.mu.Lock()
	defer m.mu.Unlock()
	stale := m.generations[userID] != gen

	if err != nil {
		m.report("failure")
		if !apperrors.Is(err, apperrors.ErrRefreshFailed) {
			err = fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
		}
		if stale {
			m.logger.Debug().Err(err).Str("user_id", userID).Msg("refresh failed for replaced tokens")
			return "", err
		}
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("refresh failed, dropping tokens")
		m.forgetLocked(userID)
		return "", err
	}

	if stale {
		// The user re-authorized or was evicted mid-flight; the grant is
		// valid but must not overwrite what is stored now.
		m.report("success")
		m.logger.Debug().Str("user_id", userID).Msg("discarding refresh for replaced tokens")
		if tok, ok := m.cache.Get(userID, m.nowFunc()); ok {
			return tok, nil
		}
		if _, err := m.refreshRepo.Get(userID); err != nil {
			return "", fmt.Errorf("user %s: %w", userID, apperrors.ErrNoRefreshToken)
		}
		return grant.AccessToken, nil
	}

	rotated := grant.RefreshToken
	if rotated == "" {
		rotated = stored.Token
	}
	if err := m.refreshRepo.Upsert(&refresh.StoredRefreshToken{
		UserID:     userID,
		Token:      rotated,
		LastSeenAt: stored.LastSeenAt,
	}); err != nil {
		return "", fmt.Errorf("failed to store rotated refresh token: %w", err)
	}
	m.cache.Set(userID, grant.AccessToken, m.nowFunc().Add(m.cacheTTL(grant.ExpiresIn)))
	m.report("success")
	m.logger.Debug().Str("user_id", userID).Bool("rotated", rotated != stored.Token).Msg("access token refreshed")
	return grant.AccessToken, nil
}

// Forget drops every token held for userID.
func (m *Manager) Forget(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgetLocked(userID)
}

func (m *Manager) forgetLocked(userID string) {
	m.generations[userID]++
	m.cache.Delete(userID)
	if err := m.refreshRepo.Delete(userID); err != nil {
		m.logger.Error().Err(err).Str("user_id", userID).Msg("failed to delete refresh token")
	}
}

// Touch marks the user's session as active, deferring idle eviction.
func (m *Manager) Touch(userID string) error {
	return m.refreshRepo.Touch(userID, m.nowFunc())
}

// EvictIdle drops the tokens of every session not seen within maxAge and
// clears expired access tokens. It returns the evicted user ids.
func (m *Manager) EvictIdle(maxAge time.Duration) ([]string, error) {
	now := m.nowFunc()
	m.cache.Cleanup(now)
	evicted, err := m.refreshRepo.DeleteIdleSince(now.Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("failed to evict idle sessions: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, userID := range evicted {
		m.generations[userID]++
		m.cache.Delete(userID)
	}
	return evicted, nil
}

func (m *Manager) cacheTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < m.ttl {
		return ttl
	}
	return m.ttl
}

func (m *Manager) report(outcome string) {
	if m.observe != nil {
		m.observe(outcome)
	}
}
