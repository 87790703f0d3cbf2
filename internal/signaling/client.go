package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

const defaultClientTimeout = 10 * time.Second

// Client is a Store that talks to a remote signaling Server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultClientTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) Put(ctx context.Context, id string, field models.Field, blob []byte) error {
	if err := checkArgs(id, field); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/save-%s/%s", c.baseURL, field, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrSignalingWrite, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return statusError(resp, apperrors.ErrSignalingWrite)
}

func (c *Client) Get(ctx context.Context, id string, field models.Field) ([]byte, error) {
	if err := checkArgs(id, field); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/get-%s/%s", c.baseURL, field, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signaling request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// Mode asks the server which inference mode it is configured for.
func (c *Client) Mode(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/mode", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signaling request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp, nil)
	}

	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode mode: %w", err)
	}
	return body.Mode, nil
}

// SaveFinal uploads a benchmark summary.
func (c *Client) SaveFinal(ctx context.Context, summary models.BenchmarkSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/save-metrics-final", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload summary: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp, nil)
	}
	return nil
}

// statusError maps an API error response back onto the sentinel errors.
// Statuses with no sentinel wrap fallback when it is set.
func statusError(resp *http.Response, fallback error) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = apperrors.ErrNotFound
	case http.StatusConflict:
		sentinel = apperrors.ErrAlreadyExists
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		sentinel = apperrors.ErrInvalidBody
	default:
		sentinel = fallback
	}

	ce := apperrors.New("signaling", resp.Request.Method+" "+resp.Request.URL.Path, nil).
		WithStatusCode(resp.StatusCode)
	switch {
	case sentinel != nil && body.Error != "":
		ce.Cause = fmt.Errorf("%w: %s", sentinel, body.Error)
	case sentinel != nil:
		ce.Cause = sentinel
	case body.Error != "":
		ce.Cause = fmt.Errorf("%s", body.Error)
	default:
		ce.Cause = fmt.Errorf("unexpected status %s", resp.Status)
	}
	return ce
}
