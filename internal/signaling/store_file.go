package signaling

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// FileStore persists one JSON file per record field:
//
//	<dir>/offers/<id>.json
//	<dir>/answers/<id>.json
//
// Files are published with a hard link from a temp file, so a field is either
// absent or complete and a second writer always loses.
type FileStore struct {
	dir   string
	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

// NewFileStore creates the store directories under dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	for _, sub := range []string{"offers", "answers"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string, field models.Field) string {
	return filepath.Join(s.dir, string(field)+"s", id+".json")
}

// lock serializes operations on one id. Ids share a fixed set of stripes so
// the lock table never grows.
func (s *FileStore) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *FileStore) Put(_ context.Context, id string, field models.Field, blob []byte) error {
	if err := checkArgs(id, field); err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	if field == models.FieldAnswer {
		if _, err := os.Stat(s.path(id, models.FieldOffer)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("%w: %w", apperrors.ErrSignalingWrite, err)
		}
	}

	return s.publish(s.path(id, field), blob)
}

// publish writes blob to a temp file and links it into place.
func (s *FileStore) publish(target string, blob []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrSignalingWrite, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", apperrors.ErrSignalingWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", apperrors.ErrSignalingWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrSignalingWrite, err)
	}

	if err := os.Link(tmp.Name(), target); err != nil {
		if errors.Is(err, os.ErrExist) {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("%w: %w", apperrors.ErrSignalingWrite, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, id string, field models.Field) ([]byte, error) {
	if err := checkArgs(id, field); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id, field))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	return data, nil
}

// Sweep removes record files last modified more than olderThan ago.
func (s *FileStore) Sweep(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	for _, sub := range []string{"answers", "offers"} {
		entries, err := os.ReadDir(filepath.Join(s.dir, sub))
		if err != nil {
			return removed, fmt.Errorf("failed to list %s: %w", sub, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".json") {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}

			id := strings.TrimSuffix(name, ".json")
			unlock := s.lock(id)
			err = os.Remove(filepath.Join(s.dir, sub, name))
			unlock()
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("Failed to remove expired record", "file", name, "error", err)
				continue
			}
			if sub == "offers" {
				removed++
			}
		}
	}
	return removed, nil
}
