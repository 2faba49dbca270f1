package relay

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aiprl/april/pkg/agent"
)

// Stream writes each event to w as one "data: <json>\n\n" frame, flushing
// immediately. Nothing is buffered for the whole turn; the client sees each
// event as soon as the loop produces it. Returns when the channel closes or
// the connection drops.
func Stream(w http.ResponseWriter, events <-chan agent.Event) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("relay: response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Disable nginx buffering; one frame per event must reach the client.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		payload, err := MarshalEvent(ev)
		if err != nil {
			slog.Warn("Dropping unserializable event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return fmt.Errorf("relay: write frame: %w", err)
		}
		flusher.Flush()
	}
	return nil
}
