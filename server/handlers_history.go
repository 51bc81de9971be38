package server

import (
	"log/slog"
	"net/http"
	"time"
)

// historyEntry is the JSON shape of one archived delivery.
type historyEntry struct {
	StreamID      string    `json:"stream_id"`
	DestinationID string    `json:"destination_id"`
	MessageID     string    `json:"message_id"`
	EventCount    int       `json:"event_count"`
	Text          string    `json:"text"`
	DeliveredAt   time.Time `json:"delivered_at"`
}

// HandleHistory returns recent archived deliveries, newest first.
// Query params: stream (filter), limit (default 50, max 500).
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.archive == nil {
		http.Error(w, "archive not configured", http.StatusServiceUnavailable)
		return
	}
	limit := parseIntQuery(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	deliveries, err := h.archive.RecentDeliveries(r.Context(), r.URL.Query().Get("stream"), limit)
	if err != nil {
		slog.Error("history query failed", slog.Any("err", err))
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	entries := make([]historyEntry, 0, len(deliveries))
	for _, d := range deliveries {
		entries = append(entries, historyEntry{
			StreamID:      d.StreamID,
			DestinationID: d.DestinationID,
			MessageID:     d.MessageID,
			EventCount:    len(d.EventIDs),
			Text:          d.Text,
			DeliveredAt:   d.DeliveredAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": entries})
}
