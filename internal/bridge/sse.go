package bridge

import (
	"fmt"
	"net/http"
	"time"
)

var sseHeartbeatInterval = 15 * time.Second

func writeSSERaw(w http.ResponseWriter, flusher http.Flusher, payload []byte) error {
	if _, err := fmt.Fprintf(w, "event: message\n"); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamSession pumps session.sseCh to the client until the request is
// cancelled or the session is torn down, heartbeating in between so
// intermediary proxies don't time out the connection.
func (srv *Server) streamSession(w http.ResponseWriter, r *http.Request, sess *Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, -32603, "stream unavailable", sess.ID)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(mcpSessionIDHeader, sess.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess.markSSEConnected()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sess.sseCh:
			if !ok {
				return
			}
			if err := writeSSERaw(w, flusher, payload); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := writeSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		}
	}
}
