package api

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/spoofsent/spoofsent/internal/metrics"
)

// handleEvents streams log entries as Server-Sent Events. Delivery is
// best-effort: a slow consumer drops entries rather than blocking a send.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	entries, cancel := s.deps.Hub.Subscribe()
	defer func() {
		cancel()
		metrics.SetLogSubscribers(s.deps.Hub.Subscribers())
	}()
	metrics.SetLogSubscribers(s.deps.Hub.Subscribers())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				s.logger.Error("failed to marshal log entry", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
