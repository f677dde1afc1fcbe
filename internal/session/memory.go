package session

import (
	"sync"

	"github.com/jwulff/transcribe/internal/api"
)

// MemoryPersister keeps the credential pair in memory. Used in tests and
// when no database is available.
type MemoryPersister struct {
	mu    sync.Mutex
	token string
	user  *api.User
	saves int
}

// LoadCredentials implements Persister.
func (m *MemoryPersister) LoadCredentials() (string, *api.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return m.token, nil, nil
	}
	u := *m.user
	return m.token, &u, nil
}

// SaveCredentials implements Persister.
func (m *MemoryPersister) SaveCredentials(token string, user api.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.user = &user
	m.saves++
	return nil
}

// ClearCredentials implements Persister.
func (m *MemoryPersister) ClearCredentials() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.user = nil
	return nil
}

// Saves returns how many times the pair was written.
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
