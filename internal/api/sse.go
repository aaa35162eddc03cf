package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wingmanlabs/wingman-backend/internal/core"
)

// sseSink delivers stream events to the client as Server-Sent Events. Headers
// are committed lazily on the first event so pre-dispatch failures can still
// be reported as plain HTTP errors.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by response writer")
	}
	return &sseSink{w: w, flusher: flusher}, nil
}

func (s *sseSink) Send(event core.StreamEvent) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.started = true
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Started reports whether any event has been written, i.e. whether response
// headers are already committed.
func (s *sseSink) Started() bool {
	return s.started
}
