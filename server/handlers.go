// Package server exposes the HTTP API handlers.
package server

import (
	"time"

	"github.com/onnwee/tl-relay/db"
	"github.com/onnwee/tl-relay/relay"
)

// Engine is the relay state surface the handlers read. Satisfied by
// *relay.Engine.
type Engine interface {
	Snapshot() []relay.StreamStatus
	QueueDepth() (queued, delayed int)
	Started() time.Time
}

// Gateway reports command-gateway connectivity for readiness.
type Gateway interface {
	Connected() bool
}

// Handlers holds dependencies for all HTTP handlers. Gateway and
// Archive are optional; nil disables the corresponding checks.
type Handlers struct {
	engine  Engine
	gateway Gateway
	archive *db.Archive
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(engine Engine, gateway Gateway, archive *db.Archive) *Handlers {
	return &Handlers{engine: engine, gateway: gateway, archive: archive}
}
