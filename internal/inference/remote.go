package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/metrics"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

const maxResponseSize = 4 << 20

// Remote posts each frame to an inference service as multipart form data
// (file, frame_id, capture_ts, width, height) and reads back
// {"detections": [...]}. Other response members are ignored.
type Remote struct {
	url    string
	client *http.Client
}

func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = config.DefaultInferenceTimeout
	}
	return &Remote{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (r *Remote) Mode() config.Mode { return config.ModeRemote }

func (r *Remote) Detect(ctx context.Context, frame models.Frame) []models.Detection {
	raw, err := r.infer(ctx, frame)
	if err != nil {
		metrics.RecordInferenceFailure(string(config.ModeRemote))
		logger.WarnContext(ctx, "Remote inference failed", "frame_id", frame.ID, "error", err)
		return []models.Detection{}
	}
	return NormalizeAll(raw, frame.Width, frame.Height)
}

type inferResponse struct {
	Detections []models.Detection `json:"detections"`
}

func (r *Remote) infer(ctx context.Context, frame models.Frame) ([]models.Detection, error) {
	body, contentType, err := encodeFrame(frame)
	if err != nil {
		return nil, apperrors.New("inference", "encode frame", fmt.Errorf("%w: %w", apperrors.ErrInferenceFailure, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return nil, apperrors.New("inference", "create request", fmt.Errorf("%w: %w", apperrors.ErrInferenceFailure, err))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperrors.New("inference", "post frame", fmt.Errorf("%w: %w", apperrors.ErrInferenceFailure, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, apperrors.New("inference", "post frame", apperrors.ErrInferenceFailure).
			WithStatusCode(resp.StatusCode)
	}

	var out inferResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return nil, apperrors.New("inference", "decode response", fmt.Errorf("%w: %w", apperrors.ErrInferenceFailure, err))
	}
	if out.Detections == nil {
		return nil, apperrors.New("inference", "decode response",
			fmt.Errorf("%w: response has no detections", apperrors.ErrInferenceFailure))
	}
	return out.Detections, nil
}

func encodeFrame(frame models.Frame) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(frame.Payload); err != nil {
		return nil, "", err
	}

	fields := []struct{ name, value string }{
		{"frame_id", strconv.FormatUint(frame.ID, 10)},
		{"capture_ts", strconv.FormatInt(frame.CaptureTS(), 10)},
		{"width", strconv.Itoa(frame.Width)},
		{"height", strconv.Itoa(frame.Height)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
