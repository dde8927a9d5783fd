package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/tourguide/internal/session"
)

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		sessions := h.sessionStore.List()
		sessionList := make([]session.Snapshot, 0, len(sessions))
		for _, sess := range sessions {
			sessionList = append(sessionList, sess.Snapshot())
		}
		h.writeJSON(w, sessionList)
	case "POST":
		sess := h.sessionStore.Create()
		slog.Info("Session created", "session_id", sess.ID)
		h.writeJSONStatus(w, http.StatusCreated, sess.Snapshot())
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	sess, ok := h.getSessionOrError(w, sessionID)
	if !ok {
		return
	}

	switch r.Method {
	case "GET":
		h.writeJSON(w, sess.Snapshot())
	case "DELETE":
		h.sessionStore.Delete(sessionID)
		slog.Info("Session deleted", "session_id", sessionID)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleReset returns a session to idle from any state
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r.PathValue("id"))
	if !ok {
		return
	}

	sess.Reset()
	slog.Info("Session reset", "session_id", sess.ID)
	h.writeJSON(w, sess.Snapshot())
}

// HandleAudio streams the narration of the current result
func (h *Handler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.getSessionOrError(w, r.PathValue("id"))
	if !ok {
		return
	}

	clip, ok := sess.Audio()
	if !ok {
		http.Error(w, "Audio unavailable", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", clip.MIMEType)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(clip.Data); err != nil {
		slog.Error("Unable to write audio", "session_id", sess.ID, "err", err)
	}
}
