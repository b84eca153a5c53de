package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shehryarbajwa/browserbase-chat/internal/protocol"
	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

// classify maps an error onto a status and a client safe body. Internal
// detail stays in the logs.
func classify(err error) (int, protocol.ErrorBody) {
	var (
		verr  *models.ValidationError
		nferr *models.ModelNotFoundError
		terr  *models.AutomationTimeoutError
		aferr *models.AutomationFailure
	)

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, protocol.NewError(protocol.ErrTypeInvalidRequest, verr.Error(), "")
	case errors.As(err, &nferr):
		return http.StatusBadRequest, protocol.NewError(protocol.ErrTypeInvalidRequest,
			fmt.Sprintf("The model `%s` does not exist", nferr.Model), "model_not_found")
	case errors.As(err, &terr):
		return http.StatusInternalServerError, protocol.NewError(protocol.ErrTypeTimeout,
			"The remote chat did not answer in time", "")
	case errors.As(err, &aferr):
		return http.StatusInternalServerError, protocol.NewError(protocol.ErrTypeInternal,
			fmt.Sprintf("The remote chat UI could not be driven (%s)", aferr.Step), "automation_failed")
	case errors.Is(err, models.ErrRefreshEmpty):
		return http.StatusInternalServerError, protocol.NewError(protocol.ErrTypeInternal,
			"The model catalog is unavailable", "catalog_unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, protocol.NewError(protocol.ErrTypeTimeout, "Request timed out", "")
	default:
		return http.StatusInternalServerError, protocol.NewError(protocol.ErrTypeInternal, "Internal server error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, body protocol.ErrorBody) {
	writeJSON(w, status, body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		h.log.Debug().Str("path", r.URL.Path).Msg("client went away")
		return
	}
	status, body := classify(err)
	ev := h.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = h.log.Error()
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	writeErrorBody(w, status, body)
}
