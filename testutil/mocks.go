package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockDiscordServer mocks the Discord REST API's create-message
// endpoint. Posted messages are captured per channel and answered with
// sequential message ids.
type MockDiscordServer struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int
	messages map[string][]string // channel id -> contents in post order
}

// NewMockDiscordServer creates a new mock Discord API server.
func NewMockDiscordServer(t *testing.T) *MockDiscordServer {
	t.Helper()
	m := &MockDiscordServer{messages: make(map[string][]string)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// POST /channels/{id}/messages
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if r.Method != http.MethodPost || len(parts) != 3 || parts[0] != "channels" || parts[2] != "messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.nextID++
		id := fmt.Sprintf("msg-%d", m.nextID)
		m.messages[parts[1]] = append(m.messages[parts[1]], body.Content)
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id}) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// Messages returns every content body posted to a channel so far.
func (m *MockDiscordServer) Messages(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages[channelID]...)
}

// MockYouTubeServer mocks the YouTube Data API endpoints the relay
// reads: videos.list for session resolution and liveChatMessages.list
// for chat pages.
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock YouTube API server.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockVideoResponse answers videos.list with one video carrying the
// given active live chat id (empty means not live).
func (m *MockYouTubeServer) MockVideoResponse(videoID, activeChatID string) {
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		item := map[string]any{"id": videoID}
		if activeChatID != "" {
			item["liveStreamingDetails"] = map[string]string{"activeLiveChatId": activeChatID}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{item}}) //nolint:errcheck // test mock response
	}
}

// ChatItem is one mocked live chat message.
type ChatItem struct {
	ID     string
	Author string
	Text   string
	Type   string // defaults to textMessageEvent
}

// MockChatPage answers liveChatMessages.list with the given items.
func (m *MockYouTubeServer) MockChatPage(items []ChatItem, nextToken string, intervalMillis int64) {
	m.Handlers["/youtube/v3/liveChat/messages"] = func(w http.ResponseWriter, r *http.Request) {
		out := make([]any, 0, len(items))
		for _, it := range items {
			typ := it.Type
			if typ == "" {
				typ = "textMessageEvent"
			}
			out = append(out, map[string]any{
				"id": it.ID,
				"snippet": map[string]any{
					"type":           typ,
					"displayMessage": it.Text,
				},
				"authorDetails": map[string]any{"displayName": it.Author},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"items":                 out,
			"nextPageToken":         nextToken,
			"pollingIntervalMillis": intervalMillis,
		})
	}
}
