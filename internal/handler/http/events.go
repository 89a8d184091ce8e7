package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/virtualmercado/shopdrive-sub002/internal/checkout"
	"github.com/virtualmercado/shopdrive-sub002/pkg/logger"
)

// heartbeatInterval keeps idle SSE connections open through proxies.
var heartbeatInterval = 15 * time.Second

// Events handles GET /api/v1/checkout/sessions/{id}/events
//
// The stream starts with the current projection and sends a new one after
// every change. It ends when the client disconnects or the session is
// discarded or expired.
func (h *CheckoutHandler) Events(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := logger.WithContext(r.Context(), h.logger)
	seq := 0
	send := func() bool {
		seq++
		if err := writeViewEvent(w, seq, s.View()); err != nil {
			log.Debug("sse write failed", slog.String("error", err.Error()))
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case _, open := <-updates:
			if !open {
				return
			}
			if !send() {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeViewEvent(w http.ResponseWriter, id int, v checkout.View) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: view\nid: %d\ndata: %s\n\n", id, data)
	return err
}
