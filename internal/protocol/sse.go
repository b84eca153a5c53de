package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const doneMarker = "[DONE]"

// StreamWriter frames chunks as server-sent events
type StreamWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewStreamWriter sets the event-stream headers on w. It reports false when
// w cannot flush, in which case streaming is not possible.
func NewStreamWriter(w http.ResponseWriter) (*StreamWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &StreamWriter{w: w, flusher: flusher}, true
}

// WriteChunk sends one data event
func (s *StreamWriter) WriteChunk(c Chunk) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return s.write("data: " + string(data) + "\n\n")
}

// WriteChunks sends chunks in order and stops at the first write error
func (s *StreamWriter) WriteChunks(chunks []Chunk) error {
	for _, c := range chunks {
		if err := s.WriteChunk(c); err != nil {
			return err
		}
	}
	return nil
}

// WriteError sends an error object as a data event
func (s *StreamWriter) WriteError(body ErrorBody) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.write("data: " + string(data) + "\n\n")
}

// Comment sends an SSE comment line, which clients ignore. It keeps idle
// proxies from closing the connection while the answer renders.
func (s *StreamWriter) Comment(text string) error {
	return s.write(": " + text + "\n\n")
}

// Done terminates the stream
func (s *StreamWriter) Done() error {
	return s.write("data: " + doneMarker + "\n\n")
}

func (s *StreamWriter) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
