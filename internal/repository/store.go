package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"tech-advisor/internal/domain"
)

// ErrNotFound is returned by Load when no live session has the given ID.
var ErrNotFound = errors.New("repository: session not found")

// SessionStore keeps session state between requests.
type SessionStore interface {
	Load(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory. Sessions idle for longer than
// the configured lifetime are treated as ended.
type MemoryStore struct {
	idle time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewMemoryStore(idle time.Duration) *MemoryStore {
	return &MemoryStore{
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*domain.Session),
	}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(s) {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *domain.Session) error {
	if s == nil || s.ID == "" {
		return errors.New("repository: session ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.now().UTC()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep drops every expired session and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len reports the number of sessions held, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryStore) expired(s *domain.Session) bool {
	return m.idle > 0 && m.now().Sub(s.UpdatedAt) > m.idle
}
