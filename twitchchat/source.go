package twitchchat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/tl-relay/relay"
)

// bufferCap bounds the per-channel message ring. IRC pushes messages
// continuously while the engine polls on its own cadence; past the cap
// the oldest buffered messages are dropped.
const bufferCap = 512

// suggestedInterval is the poll hint reported on every page. Twitch
// has no server-suggested cadence; the engine's floor still applies.
const suggestedInterval = 10 * time.Second

// Source adapts Twitch IRC to the relay's paged chat source contract.
// One IRC client runs per watched channel; its messages are buffered
// and served through FetchPage. The session id is the channel name.
type Source struct {
	username string
	token    string
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New builds a Source. Empty credentials fall back to Twitch's
// anonymous read-only IRC login.
func New(username, token string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		username: username,
		token:    token,
		log:      logger,
		sessions: make(map[string]*session),
	}
}

type session struct {
	channel string
	client  *twitch.Client

	mu      sync.Mutex
	buf     []relay.ChatEvent
	cap     int
	seq     uint64
	dropped uint64
	ended   bool
}

func (s *session) push(ev relay.ChatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if len(s.buf) >= s.cap {
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, ev)
}

// drain empties the buffer and returns the events plus the sequence
// number of the last one served.
func (s *session) drain() (events []relay.ChatEvent, seq uint64, ended bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events = s.buf
	s.buf = nil
	s.seq += uint64(len(events))
	return events, s.seq, s.ended
}

func (s *session) markEnded() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

// connectedSignal returns an OnConnect handler and a channel closed on
// the first successful handshake. The IRC client reconnects internally
// on server-initiated RECONNECT or ping timeout and runs the handler
// again on every handshake, so the close is once-guarded.
func connectedSignal() (func(), <-chan struct{}) {
	ch := make(chan struct{})
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }, ch
}

// ResolveSession joins a channel's IRC chat and confirms the
// connection before returning the channel name as the session id.
// Repeat calls for a channel already joined reuse the session.
func (s *Source) ResolveSession(ctx context.Context, channel string) (string, error) {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return "", fmt.Errorf("%w: empty twitch channel", relay.ErrNoLiveChat)
	}

	s.mu.Lock()
	if _, ok := s.sessions[channel]; ok {
		s.mu.Unlock()
		return channel, nil
	}

	var client *twitch.Client
	if s.username != "" && s.token != "" {
		client = twitch.NewClient(s.username, s.token)
	} else {
		client = twitch.NewAnonymousClient()
	}
	sess := &session{channel: channel, client: client, cap: bufferCap}
	s.sessions[channel] = sess
	s.mu.Unlock()

	onConnect, connected := connectedSignal()
	failed := make(chan error, 1)
	client.OnConnect(onConnect)
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		sess.push(relay.ChatEvent{
			ID:     msg.ID,
			Author: msg.User.DisplayName,
			Text:   msg.Message,
			Kind:   relay.EventText,
		})
	})
	client.Join(channel)
	go func() {
		err := client.Connect()
		// Connect returns on Disconnect or a terminal failure; either
		// way the feed is over.
		sess.markEnded()
		if err != nil && err != twitch.ErrClientDisconnected {
			s.log.Warn("twitch irc connection ended", "channel", channel, "err", err)
			select {
			case failed <- err:
			default:
			}
		}
	}()

	select {
	case <-connected:
		s.log.Info("twitch chat joined", "channel", channel)
		return channel, nil
	case err := <-failed:
		s.CloseSession(channel)
		return "", fmt.Errorf("twitch connect %s: %w", channel, err)
	case <-ctx.Done():
		s.CloseSession(channel)
		return "", ctx.Err()
	}
}

// FetchPage drains the channel's buffered messages in arrival order.
// The cursor is a monotonically increasing sequence number; it is
// informational, the buffer itself tracks what has been served.
func (s *Source) FetchPage(ctx context.Context, channel, cursor string) (relay.Page, error) {
	s.mu.Lock()
	sess, ok := s.sessions[channel]
	s.mu.Unlock()
	if !ok {
		return relay.Page{}, fmt.Errorf("twitch session %q not joined", channel)
	}

	events, seq, ended := sess.drain()
	page := relay.Page{
		Events:   events,
		Interval: suggestedInterval,
		Ended:    ended && len(events) == 0,
	}
	if len(events) > 0 {
		page.NextCursor = strconv.FormatUint(seq, 10)
	}
	return page, nil
}

// CloseSession disconnects the channel's IRC client and forgets the
// session. The engine calls this on every stream teardown path.
func (s *Source) CloseSession(channel string) {
	s.mu.Lock()
	sess, ok := s.sessions[channel]
	delete(s.sessions, channel)
	s.mu.Unlock()
	if !ok {
		return
	}
	sess.markEnded()
	if err := sess.client.Disconnect(); err != nil && err != twitch.ErrConnectionIsNotOpen {
		s.log.Debug("twitch disconnect", "channel", channel, "err", err)
	}
	s.log.Info("twitch chat left", "channel", channel)
}
