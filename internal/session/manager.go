package session

import (
	"sync"

	"github.com/google/uuid"
)

// Stopper is anything the manager can tear down.
type Stopper interface {
	Stop()
}

// Manager tracks live sessions so they can all be stopped on shutdown.
type Manager struct {
	sync.RWMutex
	sessions map[string]Stopper
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]Stopper)}
}

// Track registers s and returns the function that forgets it again.
func (m *Manager) Track(s Stopper) (untrack func()) {
	key := uuid.NewString()

	m.Lock()
	m.sessions[key] = s
	m.Unlock()

	return func() {
		m.Lock()
		delete(m.sessions, key)
		m.Unlock()
	}
}

func (m *Manager) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.sessions)
}

// StopAll stops every tracked session concurrently and waits for all of them.
func (m *Manager) StopAll() {
	m.Lock()
	sessions := make([]Stopper, 0, len(m.sessions))
	for key, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, key)
	}
	m.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
}
