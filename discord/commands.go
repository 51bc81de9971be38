package discord

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/onnwee/tl-relay/relay"
)

// Message is the subset of a gateway MESSAGE_CREATE payload the
// dispatcher needs.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    Author `json:"author"`
}

// Author identifies who sent a message.
type Author struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot"`
}

// Engine is the relay surface the dispatcher drives. User-visible
// outcome text is posted by the engine itself; the dispatcher only
// logs results.
type Engine interface {
	Watch(ctx context.Context, streamID string, dest relay.Destination) (string, error)
	Unwatch(ctx context.Context, dest relay.Destination) int
	SetPrefixes(ctx context.Context, dest relay.Destination, tokens []string) error
}

// Dispatcher parses chat commands and invokes the relay engine. The
// channel the command arrived in becomes the delivery destination.
type Dispatcher struct {
	Engine Engine
	Client *Client
	Prefix string // command sigil, defaults to "!"
	Logger *slog.Logger
}

func (d *Dispatcher) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dispatcher) sigil() string {
	if d.Prefix != "" {
		return d.Prefix
	}
	return "!"
}

// HandleMessage inspects one incoming message and runs any command it
// carries. Bot-authored messages and non-command text are ignored.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg Message) {
	if msg.Author.Bot {
		return
	}
	body, ok := strings.CutPrefix(strings.TrimSpace(msg.Content), d.sigil())
	if !ok {
		return
	}
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	dest := d.Client.Channel(msg.ChannelID)
	log := d.log().With("command", cmd, "channel", msg.ChannelID)

	switch cmd {
	case "watch":
		if len(args) == 0 {
			// Let the engine produce the usage hint for consistency.
			if _, err := d.Engine.Watch(ctx, "", dest); err != nil {
				log.Info("watch rejected", "err", err)
			}
			return
		}
		target, err := ParseWatchTarget(args[0])
		if err != nil {
			log.Info("watch target rejected", "arg", args[0], "err", err)
			d.notifyBadTarget(ctx, dest, args[0])
			return
		}
		if _, err := d.Engine.Watch(ctx, target, dest); err != nil {
			log.Info("watch failed", "stream", target, "err", err)
			return
		}
		log.Info("watch accepted", "stream", target)
	case "stop":
		n := d.Engine.Unwatch(ctx, dest)
		log.Info("stop handled", "removed", n)
	case "prefix":
		if err := d.Engine.SetPrefixes(ctx, dest, args); err != nil {
			log.Info("prefix rejected", "err", err)
			return
		}
		log.Info("prefixes updated", "tokens", args)
	default:
		// Unknown commands are somebody else's bot.
	}
}

func (d *Dispatcher) notifyBadTarget(ctx context.Context, dest relay.Destination, arg string) {
	text := fmt.Sprintf("Could not understand %q. Use a YouTube video URL/id or a twitch.tv channel URL.", arg)
	if _, err := dest.Deliver(ctx, text); err != nil {
		d.log().Warn("usage hint delivery failed", "channel", dest.ID(), "err", err)
	}
}

// ParseWatchTarget normalizes a watch argument into a relay stream id:
// YouTube URLs (watch?v=, youtu.be/, /live/, /shorts/) become the bare
// video id, Twitch channel URLs become "twitch:<channel>", and anything
// already id-shaped passes through. Discord link suppression brackets
// (<...>) are stripped first.
func ParseWatchTarget(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	arg = strings.TrimPrefix(arg, "<")
	arg = strings.TrimSuffix(arg, ">")
	if arg == "" {
		return "", fmt.Errorf("empty watch target")
	}

	if !strings.Contains(arg, "://") && !strings.ContainsAny(arg, "/?") {
		// Bare video id, or an already-routed id like twitch:name.
		return arg, nil
	}

	raw := arg
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse watch target %q: %w", arg, err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch host {
	case "youtu.be":
		if len(segs) > 0 && segs[0] != "" {
			return segs[0], nil
		}
	case "youtube.com", "m.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			return v, nil
		}
		if len(segs) == 2 && (segs[0] == "live" || segs[0] == "shorts") && segs[1] != "" {
			return segs[1], nil
		}
	case "twitch.tv", "m.twitch.tv":
		if len(segs) > 0 && segs[0] != "" {
			return "twitch:" + strings.ToLower(segs[0]), nil
		}
	}
	return "", fmt.Errorf("unrecognized watch target %q", arg)
}
