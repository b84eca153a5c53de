package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/browserbase-chat/internal/protocol"
	"github.com/shehryarbajwa/browserbase-chat/internal/session"
)

func notFound(w http.ResponseWriter, msg string) {
	writeErrorBody(w, http.StatusNotFound, protocol.NewError(protocol.ErrTypeInvalidRequest, msg, "not_found"))
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   h.sessions.List(),
	})
}

// DeleteSession handles DELETE /v1/sessions/{group}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]

	if err := h.sessions.Invalidate(r.Context(), group); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			notFound(w, fmt.Sprintf("No session for group %q", group))
			return
		}
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSessionScreenshot handles GET /v1/sessions/{group}/screenshot
func (h *Handler) GetSessionScreenshot(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]

	shot, err := h.sessions.Screenshot(r.Context(), group)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			notFound(w, fmt.Sprintf("No session for group %q", group))
			return
		}
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	_, _ = w.Write(shot)
}
