// Package discord implements the relay's Discord side: a minimal REST
// client for posting channel messages (the notification sink), a
// gateway consumer that feeds guild messages to the command
// dispatcher, and the dispatcher itself.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/onnwee/tl-relay/relay"
)

const defaultBaseURL = "https://discord.com/api/v10"

// maxContentLen is Discord's hard per-message character limit.
const maxContentLen = 2000

// Client is a minimal Discord REST client for sending channel messages.
type Client struct {
	Token      string
	BaseURL    string // defaults to the public v10 API
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

// CreateMessage posts content to a channel and returns the created
// message id. Content over the Discord limit is truncated. A single
// rate-limit response is retried after the advertised delay.
func (c *Client) CreateMessage(ctx context.Context, channelID, content string) (string, error) {
	if channelID == "" {
		return "", fmt.Errorf("channel id empty")
	}
	content = truncate(content, maxContentLen)
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return "", err
	}

	id, retryAfter, err := c.post(ctx, channelID, payload)
	if err == nil || retryAfter <= 0 {
		return id, err
	}
	select {
	case <-time.After(retryAfter):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	id, _, err = c.post(ctx, channelID, payload)
	return id, err
}

// post performs one create-message request. On a 429 it returns the
// server's retry delay alongside the error.
func (c *Client) post(ctx context.Context, channelID string, payload []byte) (string, time.Duration, error) {
	url := c.base() + "/channels/" + channelID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bot "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		var body struct {
			RetryAfter float64 `json:"retry_after"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 2048)).Decode(&body)
		wait := time.Duration(body.RetryAfter * float64(time.Second))
		if wait <= 0 {
			wait = time.Second
		}
		return "", wait, fmt.Errorf("discord rate limited, retry after %v", wait)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("discord create message: status %d: %s", resp.StatusCode, snippet)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, err
	}
	if body.ID == "" {
		return "", 0, fmt.Errorf("discord create message: empty id in response")
	}
	return body.ID, 0, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Channel is one Discord channel as a relay destination.
type Channel struct {
	client *Client
	id     string
}

var _ relay.Destination = (*Channel)(nil)

// Channel returns the destination capability for a channel id.
func (c *Client) Channel(id string) *Channel {
	return &Channel{client: c, id: id}
}

func (ch *Channel) ID() string { return ch.id }

func (ch *Channel) Deliver(ctx context.Context, text string) (string, error) {
	return ch.client.CreateMessage(ctx, ch.id, text)
}
