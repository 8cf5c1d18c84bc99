package loginsession

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/ranaawaisahmad/utmApp/attribution"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
)

// InMemoryLoginSessionRepo is an in-memory implementation of Repo
type InMemoryLoginSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

var _ Repo = (*InMemoryLoginSessionRepo)(nil)

func NewInMemoryLoginSessionRepo() *InMemoryLoginSessionRepo {
	return &InMemoryLoginSessionRepo{
		sessions: make(map[string]Session),
	}
}

func (r *InMemoryLoginSessionRepo) Upsert(session Session) error {
	if session.ID == "" {
		return fmt.Errorf("sessionID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	session.Attribution = maps.Clone(session.Attribution)
	r.sessions[session.ID] = session
	return nil
}

func (r *InMemoryLoginSessionRepo) Get(sessionID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, apperrors.Wrapf(apperrors.ErrSessionNotFound, "session %q", sessionID)
	}
	session.Attribution = maps.Clone(session.Attribution)
	return session, nil
}

func (r *InMemoryLoginSessionRepo) Touch(sessionID string, at time.Time) error {
	return r.update(sessionID, func(s *Session) {
		s.LastSeenAt = at
	})
}

func (r *InMemoryLoginSessionRepo) SetAttribution(sessionID string, attrs attribution.Attrs) error {
	return r.update(sessionID, func(s *Session) {
		s.Attribution = maps.Clone(attrs)
	})
}

func (r *InMemoryLoginSessionRepo) Delete(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *InMemoryLoginSessionRepo) DeleteIdleSince(cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, s := range r.sessions {
		if s.LastSeenAt.Before(cutoff) {
			removed = append(removed, id)
			delete(r.sessions, id)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

func (r *InMemoryLoginSessionRepo) update(sessionID string, fn func(*Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrSessionNotFound, "session %q", sessionID)
	}
	fn(&session)
	r.sessions[sessionID] = session
	return nil
}
