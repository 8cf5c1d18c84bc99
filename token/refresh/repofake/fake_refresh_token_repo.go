package refreshrepofake

import (
	"sort"
	"sync"
	"time"

	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/ranaawaisahmad/utmApp/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

// FakeRefreshTokenRepo keeps refresh tokens in process memory.
type FakeRefreshTokenRepo struct {
	tokens map[string]*refresh.StoredRefreshToken // user ID to token
	lock   sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[string]*refresh.StoredRefreshToken),
	}
}

func (tr *FakeRefreshTokenRepo) Upsert(refreshToken *refresh.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	stored := *refreshToken
	tr.tokens[refreshToken.UserID] = &stored
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(userID string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	rt, ok := tr.tokens[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := *rt
	return &out, nil
}

func (tr *FakeRefreshTokenRepo) Delete(userID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	delete(tr.tokens, userID)
	return nil
}

func (tr *FakeRefreshTokenRepo) Touch(userID string, at time.Time) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	rt.LastSeenAt = at
	return nil
}

func (tr *FakeRefreshTokenRepo) DeleteIdleSince(cutoff time.Time) ([]string, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	var removed []string
	for userID, rt := range tr.tokens {
		if rt.LastSeenAt.Before(cutoff) {
			removed = append(removed, userID)
			delete(tr.tokens, userID)
		}
	}
	sort.Strings(removed)
	return removed, nil
}
