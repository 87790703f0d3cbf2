package signaling

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gianglt2198/webrtc-detect/internal/config"
)

const (
	testOffer  = `{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}`
	testAnswer = `{"type":"answer","sdp":"v=0\r\no=- 3 4 IN IP4 127.0.0.1\r\n"}`
)

func setupServer(t *testing.T, opts ...func(*Server)) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	summaryPath := filepath.Join(dir, "metrics.json")

	srv, err := NewServer(store, NewSummaryStore(summaryPath), config.ModeRemote)
	require.NoError(t, err)
	for _, opt := range opts {
		opt(srv)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, summaryPath
}

func post(t *testing.T, url, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestServer_OfferAnswerExchange(t *testing.T) {
	ts, _ := setupServer(t)

	status, body := post(t, ts.URL+"/api/save-offer/abc123", testOffer)
	require.Equal(t, http.StatusOK, status)
	var saved map[string]string
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, "Offer saved", saved["message"])
	assert.Equal(t, "abc123", saved["id"])

	status, _ = get(t, ts.URL+"/api/get-answer/abc123")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = post(t, ts.URL+"/api/save-answer/abc123", testAnswer)
	require.Equal(t, http.StatusOK, status)

	status, body = get(t, ts.URL+"/api/get-answer/abc123")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []byte(testAnswer), body)

	status, body = get(t, ts.URL+"/api/get-offer/abc123")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []byte(testOffer), body)
}

func TestServer_WriteOnce(t *testing.T) {
	ts, _ := setupServer(t)

	status, _ := post(t, ts.URL+"/api/save-offer/dup001", testOffer)
	require.Equal(t, http.StatusOK, status)

	status, body := post(t, ts.URL+"/api/save-offer/dup001", testOffer)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "already exists")

	status, _ = post(t, ts.URL+"/api/save-answer/dup001", testAnswer)
	require.Equal(t, http.StatusOK, status)
	status, _ = post(t, ts.URL+"/api/save-answer/dup001", testAnswer)
	assert.Equal(t, http.StatusConflict, status)
}

func TestServer_AnswerWithoutOffer(t *testing.T) {
	ts, _ := setupServer(t)

	status, body := post(t, ts.URL+"/api/save-answer/nooffer", testAnswer)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "Offer not found")
}

func TestServer_RejectsBadInput(t *testing.T) {
	ts, _ := setupServer(t)

	tests := []struct {
		name string
		url  string
		body string
	}{
		{"invalid id", "/api/save-offer/BAD_ID", testOffer},
		{"not json", "/api/save-offer/ok0001", "not json"},
		{"wrong type", "/api/save-offer/ok0002", testAnswer},
		{"empty sdp", "/api/save-offer/ok0003", `{"type":"offer","sdp":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, ts.URL+tt.url, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestServer_BodyTooLarge(t *testing.T) {
	ts, _ := setupServer(t, func(s *Server) { s.maxBody = 1024 })

	big := `{"type":"offer","sdp":"` + strings.Repeat("a", 4096) + `"}`
	status, _ := post(t, ts.URL+"/api/save-offer/big001", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestServer_ConcurrentAnswers(t *testing.T) {
	ts, _ := setupServer(t)
	status, _ := post(t, ts.URL+"/api/save-offer/race02", testOffer)
	require.Equal(t, http.StatusOK, status)

	var mu sync.Mutex
	codes := map[int]int{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/api/save-answer/race02", "application/json",
				bytes.NewBufferString(testAnswer))
			if !assert.NoError(t, err) {
				return
			}
			resp.Body.Close()
			mu.Lock()
			codes[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, codes[http.StatusOK])
	assert.Equal(t, 7, codes[http.StatusConflict])
}

func TestServer_Mode(t *testing.T) {
	ts, _ := setupServer(t)

	status, body := get(t, ts.URL+"/api/mode")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"mode":"remote"}`, string(body))
}

func TestServer_SaveMetricsFinal(t *testing.T) {
	ts, path := setupServer(t)

	summary := `{"mode":"remote","duration_sec":10,"median_latency_ms":50,"p95_latency_ms":95,
		"processed_fps":10,"uplink_kbps":12.5,"downlink_kbps":0,"resolution":"320x240"}`
	status, body := post(t, ts.URL+"/api/save-metrics-final", summary)
	require.Equal(t, http.StatusOK, status, string(body))

	loaded, err := NewSummaryStore(path).LoadFinal()
	require.NoError(t, err)
	assert.Equal(t, int64(50), loaded.MedianLatencyMs)
	assert.Equal(t, int64(95), loaded.P95LatencyMs)
	assert.Equal(t, "320x240", loaded.Resolution)

	status, _ = post(t, ts.URL+"/api/save-metrics-final", `{"mode":"remote"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_SaveMetricsSnapshot(t *testing.T) {
	ts, path := setupServer(t)

	status, body := post(t, ts.URL+"/api/save-metrics", `{"frames":3}`)
	require.Equal(t, http.StatusOK, status)
	var resp struct {
		OK   bool   `json:"ok"`
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "metrics"), filepath.Dir(resp.Path))
	assert.FileExists(t, resp.Path)

	status, _ = post(t, ts.URL+"/api/save-metrics", `{broken`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_CORSAndHealth(t *testing.T) {
	ts, _ := setupServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/save-offer/abc", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	status, body := get(t, ts.URL+"/test")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Server is working!")
}
