package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseKeepAlive is the interval between comment lines on an idle stream.
const sseKeepAlive = 15 * time.Second

// handleEvents streams a Frame after every session change as Server-Sent
// Events named "frame". The current state is sent first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.session.Subscribe()
	defer s.session.Unsubscribe(id)

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case snap, ok := <-c:
			if !ok {
				return
			}
			payload, err := json.Marshal(s.newFrame(snap))
			if err != nil {
				logf("encode frame: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: frame\nid: %d\ndata: %s\n\n", snap.UpdatedAt.UnixMilli(), payload); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
