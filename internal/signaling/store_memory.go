package signaling

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

type memoryRecord struct {
	offer     []byte
	answer    []byte
	createdAt time.Time
}

// MemoryStore is a process-local Store. Records do not survive a restart.
type MemoryStore struct {
	records map[string]*memoryRecord
	sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
	}
}

func (s *MemoryStore) Put(_ context.Context, id string, field models.Field, blob []byte) error {
	if err := checkArgs(id, field); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	rec, exists := s.records[id]
	switch field {
	case models.FieldOffer:
		if exists {
			return apperrors.ErrAlreadyExists
		}
		s.records[id] = &memoryRecord{offer: clone(blob), createdAt: time.Now()}
	case models.FieldAnswer:
		if !exists {
			return apperrors.ErrNotFound
		}
		if rec.answer != nil {
			return apperrors.ErrAlreadyExists
		}
		rec.answer = clone(blob)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string, field models.Field) ([]byte, error) {
	if err := checkArgs(id, field); err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, apperrors.ErrNotFound
	}
	blob := rec.offer
	if field == models.FieldAnswer {
		blob = rec.answer
	}
	if blob == nil {
		return nil, apperrors.ErrNotFound
	}
	return clone(blob), nil
}

// Sweep removes records created more than olderThan ago.
func (s *MemoryStore) Sweep(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	s.Lock()
	defer s.Unlock()

	removed := 0
	for id, rec := range s.records {
		if rec.createdAt.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
