package server

import (
	"net/http"
	"time"
)

// HandleStatus returns a point-in-time summary: uptime, scheduler
// queue depths, and every tracked stream with its subscribers.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	streams := h.engine.Snapshot()
	queued, delayed := h.engine.QueueDepth()
	resp := map[string]any{
		"uptime_seconds": int(time.Since(h.engine.Started()).Seconds()),
		"streams":        streams,
		"stream_count":   len(streams),
		"queue": map[string]int{
			"pending": queued,
			"delayed": delayed,
		},
		"archive_enabled": h.archive != nil,
	}
	if h.gateway != nil {
		resp["gateway_connected"] = h.gateway.Connected()
	}
	if h.archive != nil {
		if n, err := h.archive.CountDeliveries(r.Context()); err == nil {
			resp["deliveries_archived"] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
