package api

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/browserbase-chat/internal/metrics"
	"github.com/shehryarbajwa/browserbase-chat/internal/protocol"
	"github.com/shehryarbajwa/browserbase-chat/internal/ratelimit"
)

// RateLimitMiddleware enforces the per-client request budget. Clients are
// keyed by bearer token, or by remote address when there is none.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.PerHour() <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := clientKey(r)
			limit := strconv.Itoa(limiter.PerHour())

			if !limiter.Allow(key) {
				w.Header().Set("X-RateLimit-Limit", limit)
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeErrorBody(w, http.StatusTooManyRequests, protocol.NewError(protocol.ErrTypeRateLimit,
					"Rate limit exceeded. Maximum "+limit+" requests per hour.", ""))
				return
			}

			tokens := limiter.Tokens(key)
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(tokens)))

			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware requires "Authorization: Bearer <apiKey>". An empty key
// disables the check.
func AuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				writeErrorBody(w, http.StatusUnauthorized, protocol.NewError(protocol.ErrTypeAuthentication,
					"Invalid or missing API key", "invalid_api_key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs every request and counts it by route template
func LoggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()

			ev := log.Info()
			if rec.status >= http.StatusInternalServerError {
				ev = log.Error()
			} else if rec.status >= http.StatusBadRequest {
				ev = log.Warn()
			}
			ev.Str("method", r.Method).
				Str("route", route).
				Int("status", rec.status).
				Dur("latency", time.Since(start)).
				Str("client", remoteHost(r)).
				Msg("http request")
		})
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code while still supporting streaming
// and websocket upgrades
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func clientKey(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return "key:" + token
	}
	return "ip:" + remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
