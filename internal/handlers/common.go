package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/tourguide/internal/images"
	"github.com/lehigh-university-libraries/tourguide/internal/models"
	"github.com/lehigh-university-libraries/tourguide/internal/session"
	"github.com/lehigh-university-libraries/tourguide/internal/storage"
)

// Analyzer runs the landmark pipeline on one image
type Analyzer interface {
	Analyze(ctx context.Context, img models.ImagePayload) (*models.AnalysisResult, error)
}

type Handler struct {
	sessionStore   *storage.SessionStore
	analyzer       Analyzer
	fetcher        *images.Fetcher
	maxUploadBytes int64
}

func New(analyzer Analyzer, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = images.DefaultMaxBytes
	}

	fetcher := images.NewFetcher()
	fetcher.MaxBytes = maxUploadBytes

	return &Handler{
		sessionStore:   storage.New(),
		analyzer:       analyzer,
		fetcher:        fetcher,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the mux serving the API and the web interface
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", h.HandleSessions)
	mux.HandleFunc("/api/sessions/{id}", h.HandleSessionDetail)
	mux.HandleFunc("POST /api/sessions/{id}/analyze", h.HandleAnalyze)
	mux.HandleFunc("POST /api/sessions/{id}/reset", h.HandleReset)
	mux.HandleFunc("GET /api/sessions/{id}/audio", h.HandleAudio)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	mux.HandleFunc("/", h.HandleStatic)
	return mux
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*session.Session, bool) {
	sess, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}
