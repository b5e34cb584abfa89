// Package handlers implements the HTTP endpoints: the two chat dialects,
// model listing, health and metrics.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/kirogate/kirogate/internal/translator"
)

// sseWriter streams translated events as server-sent events, flushing after
// every event so chunks reach the client immediately.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

// start emits the SSE response headers once.
func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flush()
}

func (s *sseWriter) Write(ev translator.Event) error {
	s.start()
	var err error
	switch {
	case ev.Done:
		_, err = fmt.Fprint(s.w, "data: [DONE]\n\n")
	case ev.Name != "":
		_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
	default:
		_, err = fmt.Fprintf(s.w, "data: %s\n\n", ev.Data)
	}
	if err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
