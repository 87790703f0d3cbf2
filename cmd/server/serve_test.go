package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/metrics"
	"github.com/gianglt2198/webrtc-detect/internal/models"
	"github.com/gianglt2198/webrtc-detect/internal/room"
	"github.com/gianglt2198/webrtc-detect/internal/signaling"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.SummaryPath = filepath.Join(cfg.DataDir, "metrics.json")
	return &cfg
}

func TestNewHandler_Routes(t *testing.T) {
	cfg := testConfig(t)
	cfg.StaticDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StaticDir, "index.html"), []byte("<h1>viewer</h1>"), 0o644))

	h, err := newHandler(cfg, signaling.NewMemoryStore(), room.NewManager(), metrics.NewRegistry())
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/save-offer/abc123", "application/json",
		bytes.NewBufferString(`{"type":"offer","sdp":"v=0"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "detect_signaling_ops_total")

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "viewer")

	resp, err = http.Get(ts.URL + "/api/mode")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"mode":"local"}`, string(body))
}

func TestNewHandler_NoStaticDir(t *testing.T) {
	h, err := newHandler(testConfig(t), signaling.NewMemoryStore(), room.NewManager(), metrics.NewRegistry())
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	store, closeFn, err := openStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &signaling.FileStore{}, store)
	assert.NoError(t, closeFn())

	cfg.Store = config.StoreMemory
	store, _, err = openStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &signaling.MemoryStore{}, store)

	mr := miniredis.RunT(t)
	cfg.Store = config.StoreRedis
	cfg.RedisAddr = mr.Addr()
	store, closeFn, err = openStore(ctx, cfg)
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, store.Put(ctx, "abc123", models.FieldOffer, []byte(`{}`)))
	err = store.Put(ctx, "abc123", models.FieldOffer, []byte(`{}`))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	cfg.Store = "s3"
	_, _, err = openStore(ctx, cfg)
	assert.Error(t, err)
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Store = config.StoreRedis
	cfg.RedisAddr = addr
	_, _, err := openStore(context.Background(), cfg)
	assert.Error(t, err)
}
