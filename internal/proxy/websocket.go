package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Endpoints resolves the CDP endpoint of a group's browser
type Endpoints interface {
	ControlURL(group string) (string, error)
}

// Server relays a client websocket to the browser serving a group, so the
// live page can be inspected with DevTools while requests run.
type Server struct {
	endpoints   Endpoints
	dialTimeout time.Duration
	log         zerolog.Logger
}

func NewServer(endpoints Endpoints, log zerolog.Logger) *Server {
	return &Server{
		endpoints:   endpoints,
		dialTimeout: 10 * time.Second,
		log:         log.With().Str("component", "proxy").Logger(),
	}
}

// HandleDebugConnection upgrades the request and pipes frames both ways
// until either side closes.
func (s *Server) HandleDebugConnection(w http.ResponseWriter, r *http.Request, group string) {
	target, err := s.endpoints.ControlURL(group)
	if err != nil {
		http.Error(w, "no browser session for group", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.dialTimeout)
	defer cancel()

	// Dial first so a dead browser surfaces as a plain HTTP error
	chromeConn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		s.log.Error().Err(err).Str("group", group).Msg("failed to connect to chrome")
		http.Error(w, "browser unreachable", http.StatusBadGateway)
		return
	}
	defer chromeConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}
	defer clientConn.Close()

	s.log.Info().Str("group", group).Msg("debug client connected")

	errChan := make(chan error, 2)
	go func() {
		errChan <- s.proxyMessages(clientConn, chromeConn, "client->chrome")
	}()
	go func() {
		errChan <- s.proxyMessages(chromeConn, clientConn, "chrome->client")
	}()

	err = <-errChan
	if err != nil && !isNormalClose(err) {
		s.log.Warn().Err(err).Str("group", group).Msg("debug proxy closed with error")
	}
	s.log.Info().Str("group", group).Msg("debug client disconnected")
}

func (s *Server) proxyMessages(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			return err
		}
		if err := dst.WriteMessage(messageType, message); err != nil {
			s.log.Debug().Err(err).Str("direction", direction).Msg("write failed")
			return err
		}
	}
}

func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}
