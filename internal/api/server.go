package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/browserbase-chat/internal/metrics"
	"github.com/shehryarbajwa/browserbase-chat/internal/proxy"
	"github.com/shehryarbajwa/browserbase-chat/internal/ratelimit"
)

// RouterOptions carries the optional parts of the router
type RouterOptions struct {
	APIKey      string
	RateLimiter *ratelimit.Limiter
	// DebugProxy enables the CDP websocket relay when set
	DebugProxy *proxy.Server
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()
	api.Use(AuthMiddleware(opts.APIKey))

	// Completion endpoints drive the browser and are rate limited
	limited := api.PathPrefix("").Subrouter()
	if opts.RateLimiter != nil {
		limited.Use(RateLimitMiddleware(opts.RateLimiter))
	}
	limited.HandleFunc("/chat/completions", h.ChatCompletions).Methods("POST", "OPTIONS")
	limited.HandleFunc("/models/refresh", h.RefreshModels).Methods("POST", "OPTIONS")

	api.HandleFunc("/models", h.ListModels).Methods("GET", "OPTIONS")

	// Session endpoints
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{group}", h.DeleteSession).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/sessions/{group}/screenshot", h.GetSessionScreenshot).Methods("GET")
	if opts.DebugProxy != nil {
		api.HandleFunc("/sessions/{group}/ws", func(w http.ResponseWriter, r *http.Request) {
			opts.DebugProxy.HandleDebugConnection(w, r, mux.Vars(r)["group"])
		}).Methods("GET")
	}

	// Profile endpoints
	if h.profiles != nil {
		api.HandleFunc("/profiles/{group}", h.GetProfile).Methods("GET")
		api.HandleFunc("/profiles/{group}", h.DeleteProfile).Methods("DELETE", "OPTIONS")
	}

	r.Use(LoggingMiddleware(h.log))
	// CORS middleware
	r.Use(corsMiddleware)

	return r
}
