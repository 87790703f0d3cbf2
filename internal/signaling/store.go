package signaling

import (
	"context"
	"fmt"
	"regexp"
	"time"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// Store keeps session descriptions keyed by session id. Each field of a record
// is write-once:
//   - Put returns ErrAlreadyExists when the field is already populated.
//   - Put of an answer returns ErrNotFound when no offer exists for the id.
//   - Get returns ErrNotFound for an absent field.
//
// Implementations must be safe for concurrent use and linearizable per id.
type Store interface {
	Put(ctx context.Context, id string, field models.Field, blob []byte) error
	Get(ctx context.Context, id string, field models.Field) ([]byte, error)
}

// Sweeper is implemented by stores that expire records themselves on demand.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

var idPattern = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)

// ValidateID rejects ids that are empty, too long or could escape a directory.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidID, id)
	}
	return nil
}

func checkArgs(id string, field models.Field) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if !field.Valid() {
		return fmt.Errorf("%w: unknown field %q", apperrors.ErrInvalidBody, field)
	}
	return nil
}
