package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gianglt2198/webrtc-detect/internal/config"
	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/logger"
	"github.com/gianglt2198/webrtc-detect/internal/metrics"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// DefaultMaxBodySize bounds JSON request bodies.
const DefaultMaxBodySize = 20 << 20

// Server exposes a Store over the JSON signaling API:
//
//	POST /api/save-offer/{id}     GET /api/get-offer/{id}
//	POST /api/save-answer/{id}    GET /api/get-answer/{id}
//	GET  /api/mode                POST /api/save-metrics-final
//	POST /api/save-metrics        GET  /test
type Server struct {
	store     Store
	summaries *SummaryStore
	validator *Validator
	mode      config.Mode
	maxBody   int64
}

// NewServer creates the API server.
func NewServer(store Store, summaries *SummaryStore, mode config.Mode) (*Server, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Server{
		store:     store,
		summaries: summaries,
		validator: v,
		mode:      mode,
		maxBody:   DefaultMaxBodySize,
	}, nil
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/save-offer/{id}", s.handleSave(models.FieldOffer))
	mux.HandleFunc("GET /api/get-offer/{id}", s.handleGet(models.FieldOffer))
	mux.HandleFunc("POST /api/save-answer/{id}", s.handleSave(models.FieldAnswer))
	mux.HandleFunc("GET /api/get-answer/{id}", s.handleGet(models.FieldAnswer))
	mux.HandleFunc("GET /api/mode", s.handleMode)
	mux.HandleFunc("POST /api/save-metrics-final", s.handleSaveFinal)
	mux.HandleFunc("POST /api/save-metrics", s.handleSaveSnapshot)
	mux.HandleFunc("GET /test", s.handleTest)
}

// Handler returns the API wrapped with request ids and CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return Middleware(mux)
}

// Middleware adds permissive CORS and a request id to every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), reqID)))
	})
}

func title(field models.Field) string {
	if field == models.FieldOffer {
		return "Offer"
	}
	return "Answer"
}

func (s *Server) handleSave(field models.Field) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithSessionID(r.Context(), r.PathValue("id"))
		id := r.PathValue("id")

		body, err := s.readBody(w, r)
		if err != nil {
			writeError(w, err, "Failed to read body")
			return
		}
		if err := s.validator.Description(field, body); err != nil {
			metrics.RecordSignalingOp("put", string(field), "invalid")
			writeError(w, err, err.Error())
			return
		}

		if err := s.store.Put(ctx, id, field, body); err != nil {
			kind := apperrors.Classify(err)
			metrics.RecordSignalingOp("put", string(field), string(kind))
			var msg string
			switch kind {
			case apperrors.KindNotFound:
				msg = "Offer not found"
			case apperrors.KindAlreadyExists:
				msg = title(field) + " already exists"
			case apperrors.KindInvalid:
				msg = err.Error()
			default:
				msg = "Failed to save " + string(field)
				logger.ErrorContext(ctx, "Error saving "+string(field), "error", err)
			}
			writeError(w, err, msg)
			return
		}

		metrics.RecordSignalingOp("put", string(field), "ok")
		logger.InfoContext(ctx, title(field)+" saved", "bytes", len(body))
		writeJSON(w, http.StatusOK, map[string]string{"message": title(field) + " saved", "id": id})
	}
}

func (s *Server) handleGet(field models.Field) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithSessionID(r.Context(), r.PathValue("id"))

		blob, err := s.store.Get(ctx, r.PathValue("id"), field)
		if err != nil {
			kind := apperrors.Classify(err)
			metrics.RecordSignalingOp("get", string(field), string(kind))
			msg := title(field) + " not found"
			if kind != apperrors.KindNotFound && kind != apperrors.KindInvalid {
				logger.ErrorContext(ctx, "Error reading "+string(field), "error", err)
				msg = "Failed to read " + string(field)
			}
			writeError(w, err, msg)
			return
		}

		metrics.RecordSignalingOp("get", string(field), "ok")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blob)
	}
}

func (s *Server) handleMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(s.mode)})
}

func (s *Server) handleSaveFinal(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, err, "Failed to read body")
		return
	}
	if err := s.validator.Summary(body); err != nil {
		writeError(w, err, err.Error())
		return
	}

	var summary models.BenchmarkSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		writeError(w, fmt.Errorf("%w: %w", apperrors.ErrInvalidBody, err), "Invalid summary")
		return
	}

	path, err := s.summaries.SaveFinal(summary)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to save final metrics", "error", err)
		writeError(w, err, "Failed to save metrics.json")
		return
	}
	logger.InfoContext(r.Context(), "Final metrics saved", "path", path,
		"median_latency_ms", summary.MedianLatencyMs, "p95_latency_ms", summary.P95LatencyMs)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path})
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, err, "Failed to read body")
		return
	}
	if !json.Valid(body) {
		writeError(w, apperrors.ErrInvalidBody, "Invalid JSON")
		return
	}

	path, err := s.summaries.SaveSnapshot(body)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to save metrics snapshot", "error", err)
		writeError(w, err, "failed to save metrics")
		return
	}
	logger.InfoContext(r.Context(), "Metrics saved", "path", path)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path})
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": "Server is working!",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// StatusFor maps an error to the HTTP status the API answers with.
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch apperrors.Classify(err) {
	case apperrors.KindNotFound, apperrors.KindUnknownSession:
		return http.StatusNotFound
	case apperrors.KindAlreadyExists, apperrors.KindSessionAlreadyAnswered:
		return http.StatusConflict
	case apperrors.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, msg string) {
	writeJSON(w, StatusFor(err), map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Error encoding response", "error", err)
	}
}
