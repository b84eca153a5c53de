package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/browserbase-chat/internal/completion"
	"github.com/shehryarbajwa/browserbase-chat/internal/profile"
	"github.com/shehryarbajwa/browserbase-chat/internal/protocol"
	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

const maxBodyBytes = 4 << 20

// Completer is the adapter facade
type Completer interface {
	ListModels(ctx context.Context) (protocol.ModelList, error)
	Refresh(ctx context.Context) (protocol.ModelList, error)
	Validate(req models.ChatRequest) error
	Complete(ctx context.Context, req models.ChatRequest, progress completion.Progress) (*protocol.Completion, error)
	ChunkWords() int
}

// SessionPool exposes the live browser pages
type SessionPool interface {
	List() []models.SessionInfo
	Invalidate(ctx context.Context, group string) error
	Screenshot(ctx context.Context, group string) ([]byte, error)
}

// Profiles manages saved browser profiles
type Profiles interface {
	Get(group string) (*profile.Info, error)
	Delete(group string) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	svc      Completer
	sessions SessionPool
	profiles Profiles
	log      zerolog.Logger

	// keepAlive is the minimum gap between SSE comments sent while an
	// answer renders
	keepAlive time.Duration
}

// NewHandler creates a new HTTP handler. profiles may be nil.
func NewHandler(svc Completer, sessions SessionPool, profiles Profiles, log zerolog.Logger) *Handler {
	return &Handler{
		svc:       svc,
		sessions:  sessions,
		profiles:  profiles,
		log:       log.With().Str("component", "api").Logger(),
		keepAlive: 5 * time.Second,
	}
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListModels(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// RefreshModels handles POST /v1/models/refresh
func (h *Handler) RefreshModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Refresh(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ChatCompletions handles POST /v1/chat/completions
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeErrorBody(w, http.StatusBadRequest,
			protocol.NewError(protocol.ErrTypeInvalidRequest, "Invalid request body: "+err.Error(), ""))
		return
	}

	if !req.Stream {
		c, err := h.svc.Complete(r.Context(), req, nil)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Response())
		return
	}

	h.stream(w, r, req)
}

// stream opens the event stream lazily so errors found before the remote UI
// starts answering still get a proper status code. The role chunk goes out
// as soon as text appears; the body chunks follow once the answer is final,
// since the remote UI may still rewrite what it has rendered.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req models.ChatRequest) {
	if err := h.svc.Validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeErrorBody(w, http.StatusInternalServerError,
			protocol.NewError(protocol.ErrTypeInternal, "Streaming unsupported", ""))
		return
	}

	// head fixes the id and created time shared by every chunk
	head := protocol.NewCompletion(req.Model, "", models.CompletionResult{}, time.Now())
	var (
		sw       *protocol.StreamWriter
		lastBeat time.Time
		writeErr error
	)

	progress := func(text, reasoning string) {
		if writeErr != nil {
			return
		}
		if sw == nil {
			sw, _ = protocol.NewStreamWriter(w)
			lastBeat = time.Now()
			writeErr = sw.WriteChunk(head.RoleChunk())
			return
		}
		if time.Since(lastBeat) >= h.keepAlive {
			lastBeat = time.Now()
			writeErr = sw.Comment("rendering")
		}
	}

	c, err := h.svc.Complete(r.Context(), req, progress)
	if err != nil {
		if sw == nil {
			h.writeError(w, r, err)
			return
		}
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			return
		}
		h.log.Error().Err(err).Msg("stream failed after it started")
		_, body := classify(err)
		_ = sw.WriteError(body)
		_ = sw.Done()
		return
	}

	c.ID, c.Created = head.ID, head.Created
	chunks := c.BodyChunks(h.svc.ChunkWords())
	if sw == nil {
		sw, _ = protocol.NewStreamWriter(w)
		chunks = c.Chunks(h.svc.ChunkWords())
	}
	if err := sw.WriteChunks(chunks); err != nil {
		h.log.Debug().Err(err).Msg("client went away mid stream")
		return
	}
	_ = sw.Done()
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(h.sessions.List()),
	})
}
