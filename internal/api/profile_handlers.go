package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/browserbase-chat/internal/profile"
	"github.com/shehryarbajwa/browserbase-chat/internal/protocol"
)

// GetProfile handles GET /v1/profiles/{group}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]

	info, err := h.profiles.Get(group)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			notFound(w, fmt.Sprintf("No saved profile for group %q", group))
			return
		}
		writeErrorBody(w, http.StatusBadRequest, protocol.NewError(protocol.ErrTypeInvalidRequest, err.Error(), ""))
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// DeleteProfile handles DELETE /v1/profiles/{group}. The running browser
// keeps its state until the session is closed.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]

	if err := h.profiles.Delete(group); err != nil {
		writeErrorBody(w, http.StatusBadRequest, protocol.NewError(protocol.ErrTypeInvalidRequest, err.Error(), ""))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
