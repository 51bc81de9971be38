package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/tl-relay/telemetry"
)

const (
	// Time allowed to write a frame to the gateway.
	gatewayWriteWait = 10 * time.Second

	// Maximum payload size accepted from the gateway.
	gatewayMaxMessageSize = 1024 * 1024

	// Reconnect backoff bounds.
	reconnectMin = time.Second
	reconnectMax = time.Minute

	// GUILDS | GUILD_MESSAGES | MESSAGE_CONTENT
	gatewayIntents = 1<<0 | 1<<9 | 1<<15
)

// Gateway opcodes used here.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// gatewayPayload is the envelope every gateway frame uses.
type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// Gateway maintains a Discord gateway connection and feeds
// MESSAGE_CREATE events to a dispatch callback. It identifies with the
// message-content intents the command front-end needs, heartbeats at
// the server's interval, and reconnects with exponential backoff.
type Gateway struct {
	Token    string
	URL      string
	Dispatch func(ctx context.Context, msg Message)
	Logger   *slog.Logger
	Dialer   *websocket.Dialer

	connected atomic.Bool
	selfID    atomic.Value // string
}

func (g *Gateway) log() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Gateway) dialer() *websocket.Dialer {
	if g.Dialer != nil {
		return g.Dialer
	}
	return websocket.DefaultDialer
}

// Connected reports whether a gateway session is currently up and
// identified. Used by the readiness probe.
func (g *Gateway) Connected() bool { return g.connected.Load() }

// Run keeps a gateway session alive until ctx is canceled. Each failed
// session doubles the reconnect delay up to a ceiling; a session that
// reached READY resets it.
func (g *Gateway) Run(ctx context.Context) {
	delay := reconnectMin
	for {
		ready, err := g.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if ready {
			delay = reconnectMin
		}
		g.log().Warn("gateway session ended, reconnecting", "err", err, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

// session runs one connect/identify/read cycle. It returns whether the
// session reached READY, plus the error that ended it.
func (g *Gateway) session(ctx context.Context) (ready bool, err error) {
	conn, _, err := g.dialer().DialContext(ctx, g.URL, nil)
	if err != nil {
		return false, fmt.Errorf("gateway dial: %w", err)
	}
	defer func() {
		g.connected.Store(false)
		telemetry.UpdateGatewayGauge(false)
		if cerr := conn.Close(); cerr != nil {
			g.log().Debug("gateway close", "err", cerr)
		}
	}()
	conn.SetReadLimit(gatewayMaxMessageSize)

	// Writes come from the read loop and the heartbeat goroutine.
	var writeMu sync.Mutex
	send := func(p gatewayPayload) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.SetWriteDeadline(time.Now().Add(gatewayWriteWait)); err != nil {
			return err
		}
		return conn.WriteJSON(p)
	}

	// The server speaks first with HELLO.
	var hello struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	p, err := readPayload(conn)
	if err != nil {
		return false, fmt.Errorf("gateway hello: %w", err)
	}
	if p.Op != opHello {
		return false, fmt.Errorf("gateway hello: unexpected op %d", p.Op)
	}
	if err := json.Unmarshal(p.D, &hello); err != nil {
		return false, fmt.Errorf("gateway hello: %w", err)
	}

	identify, err := json.Marshal(map[string]any{
		"token":   g.Token,
		"intents": gatewayIntents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "tl-relay",
			"device":  "tl-relay",
		},
	})
	if err != nil {
		return false, err
	}
	if err := send(gatewayPayload{Op: opIdentify, D: identify}); err != nil {
		return false, fmt.Errorf("gateway identify: %w", err)
	}

	// Heartbeat at the interval HELLO asked for, echoing the last seen
	// sequence number. A heartbeat sent without an ACK for the previous
	// one means the connection is dead even though TCP still looks open;
	// the read deadline breaks the read loop and triggers a reconnect.
	var seq atomic.Int64
	seq.Store(-1)
	var awaitingACK atomic.Bool
	hbCtx, stopHB := context.WithCancel(ctx)
	defer stopHB()
	go func() {
		interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
		if interval <= 0 {
			interval = 41 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if awaitingACK.Load() {
					g.log().Warn("gateway heartbeat ack missed, dropping connection")
					_ = conn.SetReadDeadline(time.Now())
					return
				}
				awaitingACK.Store(true)
				if err := send(heartbeatPayload(seq.Load())); err != nil {
					g.log().Debug("gateway heartbeat write failed", "err", err)
					return
				}
			}
		}
	}()

	// Unblock the read loop when ctx is canceled.
	go func() {
		<-hbCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	for {
		p, err := readPayload(conn)
		if err != nil {
			if ctx.Err() != nil {
				return ready, ctx.Err()
			}
			return ready, fmt.Errorf("gateway read: %w", err)
		}
		if p.S != nil {
			seq.Store(*p.S)
		}
		switch p.Op {
		case opDispatch:
			ready = g.handleDispatch(ctx, p, ready)
		case opHeartbeat:
			// Immediate heartbeat on request.
			if err := send(heartbeatPayload(seq.Load())); err != nil {
				return ready, fmt.Errorf("gateway heartbeat: %w", err)
			}
		case opReconnect:
			return ready, fmt.Errorf("gateway requested reconnect")
		case opInvalidSession:
			return ready, fmt.Errorf("gateway session invalidated")
		case opHeartbeatACK:
			awaitingACK.Store(false)
		default:
			g.log().Debug("gateway op ignored", "op", p.Op)
		}
	}
}

func (g *Gateway) handleDispatch(ctx context.Context, p gatewayPayload, ready bool) bool {
	switch p.T {
	case "READY":
		var d struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		if err := json.Unmarshal(p.D, &d); err != nil {
			g.log().Warn("gateway ready decode failed", "err", err)
		}
		g.selfID.Store(d.User.ID)
		g.connected.Store(true)
		telemetry.UpdateGatewayGauge(true)
		g.log().Info("gateway ready", "user", d.User.ID)
		return true
	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(p.D, &msg); err != nil {
			g.log().Warn("message decode failed", "err", err)
			return ready
		}
		if self, _ := g.selfID.Load().(string); self != "" && msg.Author.ID == self {
			return ready
		}
		if g.Dispatch != nil {
			// Commands can block on upstream calls; keep the read loop
			// (and heartbeats) moving.
			go g.Dispatch(ctx, msg)
		}
	}
	return ready
}

func heartbeatPayload(seq int64) gatewayPayload {
	if seq < 0 {
		return gatewayPayload{Op: opHeartbeat, D: json.RawMessage("null")}
	}
	return gatewayPayload{Op: opHeartbeat, D: json.RawMessage(fmt.Sprintf("%d", seq))}
}

func readPayload(conn *websocket.Conn) (gatewayPayload, error) {
	var p gatewayPayload
	if err := conn.ReadJSON(&p); err != nil {
		return gatewayPayload{}, err
	}
	return p, nil
}
