package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

func TestValidator_Description(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name  string
		field models.Field
		body  string
		valid bool
	}{
		{"offer", models.FieldOffer, `{"type":"offer","sdp":"v=0"}`, true},
		{"extra members kept", models.FieldOffer, `{"type":"offer","sdp":"v=0","x":1}`, true},
		{"answer", models.FieldAnswer, `{"type":"answer","sdp":"v=0"}`, true},
		{"answer as offer", models.FieldOffer, `{"type":"answer","sdp":"v=0"}`, false},
		{"missing sdp", models.FieldAnswer, `{"type":"answer"}`, false},
		{"sdp not string", models.FieldOffer, `{"type":"offer","sdp":5}`, false},
		{"array", models.FieldOffer, `[]`, false},
		{"garbage", models.FieldOffer, `{{`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Description(tt.field, []byte(tt.body))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrInvalidBody)
			}
		})
	}
}

func TestValidator_Summary(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	ok := `{"mode":"local","duration_sec":30,"median_latency_ms":0,"p95_latency_ms":0,
		"processed_fps":0,"uplink_kbps":0,"resolution":"320x240"}`
	assert.NoError(t, v.Summary([]byte(ok)))

	bad := `{"mode":"local","duration_sec":0,"median_latency_ms":0,"p95_latency_ms":0,
		"processed_fps":0,"uplink_kbps":0,"resolution":"big"}`
	assert.ErrorIs(t, v.Summary([]byte(bad)), apperrors.ErrInvalidBody)
}

func TestSummaryStore_SaveFinalOverwrites(t *testing.T) {
	store := NewSummaryStore(t.TempDir() + "/out/metrics.json")

	_, err := store.SaveFinal(models.BenchmarkSummary{Mode: "local", DurationSec: 5, Resolution: "320x240"})
	require.NoError(t, err)
	path, err := store.SaveFinal(models.BenchmarkSummary{Mode: "remote", DurationSec: 10, Resolution: "640x480"})
	require.NoError(t, err)
	assert.Equal(t, store.FinalPath(), path)

	loaded, err := store.LoadFinal()
	require.NoError(t, err)
	assert.Equal(t, "remote", loaded.Mode)
	assert.Equal(t, "640x480", loaded.Resolution)
}
