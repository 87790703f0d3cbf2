package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

func testFrame() models.Frame {
	return models.Frame{
		ID:         42,
		CapturedAt: time.UnixMilli(1700000000123),
		Payload:    []byte("fake-jpeg"),
		Width:      320,
		Height:     240,
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   models.Detection
		want models.Detection
	}{
		{
			name: "already normalized",
			in:   models.Detection{Label: "a", Score: 0.8, XMin: 0.1, YMin: 0.2, XMax: 0.3, YMax: 0.4},
			want: models.Detection{Label: "a", Score: 0.8, XMin: 0.1, YMin: 0.2, XMax: 0.3, YMax: 0.4},
		},
		{
			name: "absolute pixels",
			in:   models.Detection{Score: 0.5, XMin: 32, YMin: 24, XMax: 160, YMax: 240},
			want: models.Detection{Score: 0.5, XMin: 0.1, YMin: 0.1, XMax: 0.5, YMax: 1},
		},
		{
			name: "full frame",
			in:   models.Detection{Score: 1, XMin: 0, YMin: 0, XMax: 320, YMax: 240},
			want: models.Detection{Score: 1, XMin: 0, YMin: 0, XMax: 1, YMax: 1},
		},
		{
			name: "normalized with float noise above one",
			in:   models.Detection{Score: 0.9, XMin: 0.25, YMin: 0.5, XMax: 1.0000001, YMax: 1.0000004},
			want: models.Detection{Score: 0.9, XMin: 0.25, YMin: 0.5, XMax: 1, YMax: 1},
		},
		{
			name: "just past tolerance is pixels",
			in:   models.Detection{Score: 0.9, XMin: 0, YMin: 0, XMax: 1.01, YMax: 1.01},
			want: models.Detection{Score: 0.9, XMin: 0, YMin: 0, XMax: 1.01 / 320, YMax: 1.01 / 240},
		},
		{
			name: "zero area",
			in:   models.Detection{XMin: 0.5, YMin: 0.5, XMax: 0.5, YMax: 0.5},
			want: models.Detection{XMin: 0.5, YMin: 0.5, XMax: 0.5, YMax: 0.5},
		},
		{
			name: "swapped corners",
			in:   models.Detection{XMin: 0.9, YMin: 0.7, XMax: 0.1, YMax: 0.2},
			want: models.Detection{XMin: 0.1, YMin: 0.2, XMax: 0.9, YMax: 0.7},
		},
		{
			name: "out of frame and bad score",
			in:   models.Detection{Score: 1.7, XMin: -40, YMin: -1, XMax: 400, YMax: 480},
			want: models.Detection{Score: 1, XMin: 0, YMin: 0, XMax: 1, YMax: 1},
		},
		{
			name: "nan",
			in:   models.Detection{Score: math.NaN(), XMin: math.NaN(), YMin: 0.1, XMax: 0.2, YMax: math.NaN()},
			want: models.Detection{Score: 0, XMin: 0, YMin: 0, XMax: 0.2, YMax: 0.1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in, 320, 240)
			assert.Equal(t, tt.want.Label, got.Label)
			assert.InDelta(t, tt.want.Score, got.Score, 1e-9)
			assert.InDelta(t, tt.want.XMin, got.XMin, 1e-9)
			assert.InDelta(t, tt.want.YMin, got.YMin, 1e-9)
			assert.InDelta(t, tt.want.XMax, got.XMax, 1e-9)
			assert.InDelta(t, tt.want.YMax, got.YMax, 1e-9)
		})
	}
}

func FuzzNormalize(f *testing.F) {
	f.Add(0.0, 0.0, 1.0, 1.0, 0.5, 320, 240)
	f.Add(0.0, 0.0, 320.0, 240.0, 1.0, 320, 240)
	f.Add(10.0, 10.0, 10.0, 10.0, 0.0, 320, 240)
	f.Add(-5.0, 2.0, 1e9, -1e9, 7.0, 0, 0)
	f.Add(math.Inf(1), math.Inf(-1), math.NaN(), 0.5, math.NaN(), 1, 1)

	f.Fuzz(func(t *testing.T, xmin, ymin, xmax, ymax, score float64, w, h int) {
		d := Normalize(models.Detection{Score: score, XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}, w, h)
		for _, v := range []float64{d.Score, d.XMin, d.YMin, d.XMax, d.YMax} {
			if math.IsNaN(v) || v < 0 || v > 1 {
				t.Fatalf("value out of range: %+v", d)
			}
		}
		if d.XMin > d.XMax || d.YMin > d.YMax {
			t.Fatalf("corners out of order: %+v", d)
		}
	})
}

type stubDetector struct {
	out []models.Detection
	err error
}

func (s stubDetector) Detect(context.Context, models.Frame) ([]models.Detection, error) {
	return s.out, s.err
}

func TestLocal(t *testing.T) {
	ctx := context.Background()

	nop := NewLocal(nil)
	assert.Equal(t, config.ModeLocal, nop.Mode())
	got := nop.Detect(ctx, testFrame())
	assert.NotNil(t, got)
	assert.Empty(t, got)

	failing := NewLocal(stubDetector{err: errors.New("model crashed")})
	got = failing.Detect(ctx, testFrame())
	assert.NotNil(t, got)
	assert.Empty(t, got)

	abs := NewLocal(stubDetector{out: []models.Detection{{Label: "person", Score: 0.9, XMin: 0, YMin: 0, XMax: 160, YMax: 120}}})
	got = abs.Detect(ctx, testFrame())
	require.Len(t, got, 1)
	assert.Equal(t, "person", got[0].Label)
	assert.InDelta(t, 0.5, got[0].XMax, 1e-9)
	assert.InDelta(t, 0.5, got[0].YMax, 1e-9)
}

func TestMarkerDetector(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(80, 60, 160, 120), &image.Uniform{C: color.RGBA{R: 255, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))

	frame := testFrame()
	frame.Payload = buf.Bytes()

	got := NewLocal(MarkerDetector{}).Detect(context.Background(), frame)
	require.Len(t, got, 1)
	assert.Equal(t, "marker", got[0].Label)
	assert.InDelta(t, 0.25, got[0].XMin, 0.02)
	assert.InDelta(t, 0.25, got[0].YMin, 0.02)
	assert.InDelta(t, 0.5, got[0].XMax, 0.02)
	assert.InDelta(t, 0.5, got[0].YMax, 0.02)
	assert.Greater(t, got[0].Score, 0.8)

	frame.Payload = []byte("not a jpeg")
	assert.Empty(t, NewLocal(MarkerDetector{}).Detect(context.Background(), frame))
}

func TestRemote_SendsMultipartFrame(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "42", r.FormValue("frame_id"))
		assert.Equal(t, "1700000000123", r.FormValue("capture_ts"))
		assert.Equal(t, "320", r.FormValue("width"))
		assert.Equal(t, "240", r.FormValue("height"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		assert.Equal(t, "frame.jpg", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, []byte("fake-jpeg"), data)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"frame_id":"42","capture_ts":1700000000123.0,"recv_ts":1.5,"inference_ts":1.6,
			"detections":[{"label":"car","score":0.7,"xmin":0.1,"ymin":0.2,"xmax":0.6,"ymax":0.9},
			{"label":"dog","score":0.4,"xmin":64,"ymin":48,"xmax":128,"ymax":96}]}`)
	}))
	defer ts.Close()

	remote := NewRemote(ts.URL, time.Second)
	assert.Equal(t, config.ModeRemote, remote.Mode())

	got := remote.Detect(context.Background(), testFrame())
	require.Len(t, got, 2)
	assert.Equal(t, "car", got[0].Label)
	assert.InDelta(t, 0.6, got[0].XMax, 1e-9)
	assert.Equal(t, "dog", got[1].Label)
	assert.InDelta(t, 0.2, got[1].XMin, 1e-9)
	assert.InDelta(t, 0.4, got[1].YMax, 1e-9)
}

func TestRemote_FailuresDegradeToEmpty(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		},
		"malformed": func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"detections": [`)
		},
		"missing detections": func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"error":"nope"}`)
		},
		"slow": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		},
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(h)
			defer ts.Close()

			got := NewRemote(ts.URL, 200*time.Millisecond).Detect(context.Background(), testFrame())
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()
		got := NewRemote(url, time.Second).Detect(context.Background(), testFrame())
		assert.Empty(t, got)
	})
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, config.ModeLocal, New(&cfg, nil).Mode())

	cfg.Mode = config.ModeRemote
	assert.Equal(t, config.ModeRemote, New(&cfg, nil).Mode())
}
