package twitchchat

import (
	"context"
	"fmt"
	"testing"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/tl-relay/relay"
)

// newTestSource installs a session without touching IRC so the paging
// behavior can be exercised in isolation.
func newTestSource(channel string, capacity int) (*Source, *session) {
	s := New("", "", nil)
	sess := &session{channel: channel, client: twitch.NewAnonymousClient(), cap: capacity}
	s.sessions[channel] = sess
	return s, sess
}

func ev(i int) relay.ChatEvent {
	return relay.ChatEvent{
		ID:     fmt.Sprintf("id-%d", i),
		Author: "viewer",
		Text:   fmt.Sprintf("[EN] line %d", i),
		Kind:   relay.EventText,
	}
}

func TestFetchPageDrainsInOrder(t *testing.T) {
	s, sess := newTestSource("chan", bufferCap)
	for i := 0; i < 3; i++ {
		sess.push(ev(i))
	}

	page, err := s.FetchPage(context.Background(), "chan", "")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(page.Events))
	}
	for i, e := range page.Events {
		if e.ID != fmt.Sprintf("id-%d", i) {
			t.Errorf("event %d id = %q, want id-%d", i, e.ID, i)
		}
	}
	if page.NextCursor != "3" {
		t.Errorf("cursor = %q, want 3", page.NextCursor)
	}
	if page.Interval != suggestedInterval {
		t.Errorf("interval = %v, want %v", page.Interval, suggestedInterval)
	}
	if page.Ended {
		t.Error("page marked ended while session is live")
	}

	// Buffer is spent; a second fetch is empty and keeps the cursor.
	page, err = s.FetchPage(context.Background(), "chan", page.NextCursor)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page.Events) != 0 {
		t.Errorf("second page events = %d, want 0", len(page.Events))
	}
	if page.NextCursor != "" {
		t.Errorf("empty page cursor = %q, want empty", page.NextCursor)
	}
}

func TestRingDropsOldest(t *testing.T) {
	s, sess := newTestSource("chan", 3)
	for i := 0; i < 5; i++ {
		sess.push(ev(i))
	}

	page, err := s.FetchPage(context.Background(), "chan", "")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page.Events) != 3 {
		t.Fatalf("events = %d, want 3 (capacity)", len(page.Events))
	}
	// Oldest two dropped: ids 2, 3, 4 remain.
	for i, e := range page.Events {
		want := fmt.Sprintf("id-%d", i+2)
		if e.ID != want {
			t.Errorf("event %d id = %q, want %q", i, e.ID, want)
		}
	}
	if sess.dropped != 2 {
		t.Errorf("dropped = %d, want 2", sess.dropped)
	}
}

func TestEndedAfterDisconnect(t *testing.T) {
	s, sess := newTestSource("chan", bufferCap)
	sess.push(ev(0))
	sess.markEnded()

	// Buffered messages still drain before the ended page.
	page, err := s.FetchPage(context.Background(), "chan", "")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(page.Events))
	}
	if page.Ended {
		t.Error("page with remaining events marked ended")
	}

	page, err = s.FetchPage(context.Background(), "chan", page.NextCursor)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if !page.Ended {
		t.Error("empty page after disconnect not marked ended")
	}
}

func TestPushAfterEndedIgnored(t *testing.T) {
	_, sess := newTestSource("chan", bufferCap)
	sess.markEnded()
	sess.push(ev(0))
	if events, _, _ := sess.drain(); len(events) != 0 {
		t.Errorf("events pushed after end = %d, want 0", len(events))
	}
}

func TestFetchPageUnknownSession(t *testing.T) {
	s := New("", "", nil)
	if _, err := s.FetchPage(context.Background(), "nope", ""); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestCloseSessionForgets(t *testing.T) {
	s, _ := newTestSource("chan", bufferCap)
	s.CloseSession("chan")
	if _, err := s.FetchPage(context.Background(), "chan", ""); err == nil {
		t.Fatal("expected error after CloseSession")
	}
	// Closing twice is a no-op.
	s.CloseSession("chan")
}

func TestConnectedSignalSurvivesReconnect(t *testing.T) {
	onConnect, connected := connectedSignal()
	onConnect()
	select {
	case <-connected:
	default:
		t.Fatal("channel not closed after first handshake")
	}
	// The IRC client runs the handler again on every reconnect
	// handshake; repeat fires must not panic.
	onConnect()
	onConnect()
}

func TestResolveSessionRejectsEmptyChannel(t *testing.T) {
	s := New("", "", nil)
	if _, err := s.ResolveSession(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty channel")
	}
}
