package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/tourguide/internal/images"
	"github.com/lehigh-university-libraries/tourguide/internal/pipeline"
	"github.com/lehigh-university-libraries/tourguide/internal/session"
)

// HandleAnalyze accepts an image for a session and runs the pipeline on it.
// The run is synchronous; the response carries the resulting session state.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r.PathValue("id"))
	if !ok {
		return
	}

	run, err := sess.Begin()
	if err != nil {
		msg := "Session already holds a result; reset it first"
		if errors.Is(err, session.ErrBusy) {
			msg = "Analysis already in progress"
		}
		h.writeError(w, msg, http.StatusConflict)
		return
	}

	img, err := h.readImage(w, r)
	if err != nil {
		slog.Warn("Rejected image", "session_id", sess.ID, "err", err)
		_ = sess.Fail(run, errors.New("Could not read that image. Please try another photo."))
		h.writeJSONStatus(w, http.StatusBadRequest, sess.Snapshot())
		return
	}

	attrs := []any{"session_id", sess.ID, "content_type", img.ContentType, "bytes", len(img.Data)}
	if width, height, err := images.Dimensions(img); err == nil {
		attrs = append(attrs, "width", width, "height", height)
	}
	slog.Info("Analyzing image", attrs...)

	result, err := h.analyzer.Analyze(r.Context(), img)
	if err != nil {
		slog.Error("Analysis failed", "session_id", sess.ID, "err", err)
		status, msg := failureResponse(err)
		_ = sess.Fail(run, errors.New(msg))
		h.writeJSONStatus(w, status, sess.Snapshot())
		return
	}

	if err := sess.Complete(run, result); err != nil {
		// the user reset while the run was in flight; a newer run may own the session now
		slog.Info("Discarding stale result", "session_id", sess.ID, "label", result.LandmarkLabel)
		h.writeError(w, "Session was reset during analysis", http.StatusConflict)
		return
	}

	slog.Info("Session has result", "session_id", sess.ID, "label", result.LandmarkLabel, "audio", result.AudioAvailable())
	h.writeJSON(w, sess.Snapshot())
}

// failureResponse maps a pipeline error to a status code and a short user-facing message
func failureResponse(err error) (int, string) {
	var malformed *pipeline.MalformedInputError
	if errors.As(err, &malformed) {
		return http.StatusBadRequest, "Could not read that image. Please try another photo."
	}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case pipeline.StageIdentify:
			return http.StatusBadGateway, "Failed to identify the landmark. Please try again."
		case pipeline.StageHistory:
			return http.StatusBadGateway, "Failed to retrieve the landmark's history. Please try again."
		}
	}

	return http.StatusInternalServerError, "Failed to analyze image. Please try again."
}
