package loginsession

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-forward-auth/internal/errors"
)

// InMemoryRepo is an in-memory implementation of Repo. Expired entries are
// dropped lazily on access.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
	nowFunc  func() time.Time
}

// NewInMemoryRepo creates a new in-memory login session repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]Session),
		nowFunc:  time.Now,
	}
}

// Upsert creates or updates a login session
func (r *InMemoryRepo) Upsert(sessionID string, session Session) error {
	if sessionID == "" {
		return errors.ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = session
	return nil
}

// Get retrieves a login session by ID
func (r *InMemoryRepo) Get(sessionID string) (Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[sessionID]
	r.mu.RUnlock()

	if !ok {
		return Session{}, errors.ErrSessionNotFound
	}
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(r.nowFunc()) {
		_ = r.Delete(sessionID)
		return Session{}, errors.ErrSessionNotFound
	}
	return session, nil
}

// Delete removes a login session
func (r *InMemoryRepo) Delete(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}
