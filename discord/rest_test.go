package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestCreateMessage(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/channels/chan-1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		gotBody = body.Content
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-42"})
	}))
	defer srv.Close()

	c := &Client{Token: "tok", BaseURL: srv.URL}
	id, err := c.CreateMessage(context.Background(), "chan-1", "hello")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if id != "msg-42" {
		t.Errorf("message id = %q, want msg-42", id)
	}
	if gotAuth != "Bot tok" {
		t.Errorf("authorization = %q, want Bot tok", gotAuth)
	}
	if gotBody != "hello" {
		t.Errorf("content = %q, want hello", gotBody)
	}
}

func TestCreateMessageRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]float64{"retry_after": 0.01})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-2"})
	}))
	defer srv.Close()

	c := &Client{Token: "tok", BaseURL: srv.URL}
	id, err := c.CreateMessage(context.Background(), "chan-1", "hello")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if id != "msg-2" {
		t.Errorf("message id = %q, want msg-2", id)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("request count = %d, want 2", n)
	}
}

func TestCreateMessageRateLimitedTwiceFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]float64{"retry_after": 0.01})
	}))
	defer srv.Close()

	c := &Client{Token: "tok", BaseURL: srv.URL}
	if _, err := c.CreateMessage(context.Background(), "chan-1", "hello"); err == nil {
		t.Fatal("expected error after repeated rate limiting")
	}
}

func TestCreateMessageClampsContent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = body.Content
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-1"})
	}))
	defer srv.Close()

	c := &Client{Token: "tok", BaseURL: srv.URL}
	long := strings.Repeat("é", maxContentLen+50)
	if _, err := c.CreateMessage(context.Background(), "chan-1", long); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if n := len([]rune(got)); n != maxContentLen {
		t.Errorf("delivered content runes = %d, want %d", n, maxContentLen)
	}
}

func TestCreateMessageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &Client{Token: "tok", BaseURL: srv.URL}
	if _, err := c.CreateMessage(context.Background(), "chan-1", "hello"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestChannelDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/dest-9/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-7"})
	}))
	defer srv.Close()

	ch := (&Client{Token: "tok", BaseURL: srv.URL}).Channel("dest-9")
	if ch.ID() != "dest-9" {
		t.Errorf("channel id = %q, want dest-9", ch.ID())
	}
	id, err := ch.Deliver(context.Background(), "text")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if id != "msg-7" {
		t.Errorf("message id = %q, want msg-7", id)
	}
}
