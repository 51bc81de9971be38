package relay

import (
	"context"
	"fmt"
	"strings"
)

// SourceMux fans stream and session ids out to named chat sources.
// An id of the form "name:rest" routes to the source registered under
// "name"; anything else goes to the default source. Session ids minted
// by a named source are re-prefixed so subsequent fetches route the
// same way.
type SourceMux struct {
	def   ChatSource
	named map[string]ChatSource
}

func NewSourceMux(def ChatSource) *SourceMux {
	return &SourceMux{def: def, named: make(map[string]ChatSource)}
}

// Register adds a named source. Not safe to call once the mux is in
// use.
func (m *SourceMux) Register(name string, src ChatSource) {
	m.named[name] = src
}

// route returns the source for id plus the registered name ("" for the
// default) and the id with any routing prefix stripped.
func (m *SourceMux) route(id string) (ChatSource, string, string) {
	if name, rest, ok := strings.Cut(id, ":"); ok {
		if src, found := m.named[name]; found {
			return src, name, rest
		}
	}
	return m.def, "", id
}

func (m *SourceMux) ResolveSession(ctx context.Context, streamID string) (string, error) {
	src, name, id := m.route(streamID)
	if src == nil {
		// No default source configured; only named routes work.
		return "", fmt.Errorf("%w: no chat source for %q", ErrNoLiveChat, streamID)
	}
	sessionID, err := src.ResolveSession(ctx, id)
	if err != nil {
		return "", err
	}
	if name != "" {
		sessionID = name + ":" + sessionID
	}
	return sessionID, nil
}

func (m *SourceMux) FetchPage(ctx context.Context, sessionID, cursor string) (Page, error) {
	src, _, id := m.route(sessionID)
	if src == nil {
		return Page{}, fmt.Errorf("no chat source for session %q", sessionID)
	}
	return src.FetchPage(ctx, id, cursor)
}

// CloseSession forwards to the owning source when it keeps per-session
// resources.
func (m *SourceMux) CloseSession(sessionID string) {
	src, _, id := m.route(sessionID)
	if sc, ok := src.(SessionCloser); ok {
		sc.CloseSession(id)
	}
}
