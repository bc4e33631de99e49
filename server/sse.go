package server

import (
	"fmt"
	"net/http"

	"github.com/educaia/agenthub/core"
)

// sseSink adapts an HTTP response to core.Sink using Server-Sent Events
// framing. Headers are written lazily on the first event so failures before
// any output can still be reported as a plain JSON status.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &sseSink{w: w, flusher: flusher}, nil
}

// Started reports whether any event has been written.
func (s *sseSink) Started() bool { return s.started }

// Emit writes one SSE frame and flushes it immediately.
func (s *sseSink) Emit(ev core.StreamEvent) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close flushes any remaining buffered output. The connection itself is owned
// by net/http.
func (s *sseSink) Close() error {
	if s.started {
		s.flusher.Flush()
	}
	return nil
}
