package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/onnwee/tl-relay/config"
	"github.com/onnwee/tl-relay/discord"
	"github.com/onnwee/tl-relay/relay"
	"github.com/onnwee/tl-relay/testutil"
	"github.com/onnwee/tl-relay/youtubeapi"
)

// TestRelayEndToEnd runs the real engine against mocked YouTube and
// Discord APIs: watch a video, observe matching chat relayed to the
// channel, and see the stream appear in and vanish from /status.
func TestRelayEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	yt := testutil.NewMockYouTubeServer(t)
	yt.MockVideoResponse("vid1", "chat-1")
	yt.MockChatPage([]testutil.ChatItem{
		{ID: "e1", Author: "mio", Text: "[EN] hello world"},
		{ID: "e2", Author: "chatter", Text: "unrelated chatter"},
		{ID: "e3", Author: "fan", Text: "$5 thanks!", Type: "superChatEvent"},
	}, "page-2", 10)

	src, err := youtubeapi.New(ctx, &config.Config{YTAPIKey: "test-key"}, option.WithEndpoint(yt.URL))
	if err != nil {
		t.Fatalf("youtube source: %v", err)
	}

	dsrv := testutil.NewMockDiscordServer(t)
	client := &discord.Client{Token: "tok", BaseURL: dsrv.URL}

	eng := relay.NewEngine(relay.Options{
		Source:    src,
		DrainGap:  5 * time.Millisecond,
		PollFloor: 10 * time.Millisecond,
	})
	go eng.Run(ctx)

	mux := NewMux(NewHandlers(eng, &fakeGateway{up: true}, nil))

	dest := client.Channel("chan-1")
	if _, err := eng.Watch(ctx, "vid1", dest); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// The watch confirmation arrives first, then the relayed batch.
	deadline := time.Now().Add(3 * time.Second)
	var relayed string
	for time.Now().Before(deadline) && relayed == "" {
		for _, m := range dsrv.Messages("chan-1") {
			if strings.Contains(m, "[EN] hello world") {
				relayed = m
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if relayed == "" {
		t.Fatalf("matching chat never relayed; got %v", dsrv.Messages("chan-1"))
	}
	if !strings.Contains(relayed, "**mio**") {
		t.Errorf("relayed batch = %q, want author line for mio", relayed)
	}
	if strings.Contains(relayed, "unrelated chatter") || strings.Contains(relayed, "$5") {
		t.Errorf("relayed batch = %q, includes non-matching events", relayed)
	}

	// Dedup: let several more polls run, then confirm the batch went
	// out exactly once.
	time.Sleep(100 * time.Millisecond)
	count := 0
	for _, m := range dsrv.Messages("chan-1") {
		if strings.Contains(m, "[EN] hello world") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("batch delivered %d times, want 1", count)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var status struct {
		StreamCount int                  `json:"stream_count"`
		Streams     []relay.StreamStatus `json:"streams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.StreamCount != 1 || status.Streams[0].StreamID != "vid1" {
		t.Fatalf("status = %+v, want one stream vid1", status)
	}

	eng.Unwatch(ctx, dest)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.StreamCount != 0 {
		t.Errorf("stream count after unwatch = %d, want 0", status.StreamCount)
	}
}
