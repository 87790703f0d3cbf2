package room

import (
	"sync"
	"time"
)

// Room groups the relay members watching one session.
type Room struct {
	ID        string
	Members   map[string]*Member
	Lock      sync.RWMutex
	CreatedAt time.Time
}

// MemberIDs returns the ids of all members except exclude.
func (r *Room) MemberIDs(exclude string) []string {
	r.Lock.RLock()
	defer r.Lock.RUnlock()

	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	return ids
}

// Manager owns the set of live rooms, keyed by session id.
type Manager struct {
	rooms map[string]*Room
	sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// Join adds m to the room for id, creating the room on first use.
func (m *Manager) Join(id string, member *Member) *Room {
	m.Lock()
	defer m.Unlock()

	r, exists := m.rooms[id]
	if !exists {
		r = &Room{
			ID:        id,
			Members:   make(map[string]*Member),
			CreatedAt: time.Now(),
		}
		m.rooms[id] = r
	}

	r.Lock.Lock()
	r.Members[member.ID] = member
	r.Lock.Unlock()
	return r
}

// Leave removes the member and deletes the room once it is empty.
// It reports whether the room was deleted.
func (m *Manager) Leave(r *Room, memberID string) bool {
	m.Lock()
	defer m.Unlock()

	r.Lock.Lock()
	delete(r.Members, memberID)
	empty := len(r.Members) == 0
	r.Lock.Unlock()

	if empty && m.rooms[r.ID] == r {
		delete(m.rooms, r.ID)
	}
	return empty
}

// Get returns the room for id.
func (m *Manager) Get(id string) (*Room, bool) {
	m.RLock()
	defer m.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Len returns the number of live rooms.
func (m *Manager) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.rooms)
}

// CloseAll disconnects every member of every room.
func (m *Manager) CloseAll() {
	m.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.Unlock()

	for _, r := range rooms {
		r.Lock.RLock()
		for _, member := range r.Members {
			_ = member.Close()
		}
		r.Lock.RUnlock()
	}
}
