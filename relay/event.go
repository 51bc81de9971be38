package relay

import (
	"context"
	"time"
)

// EventText is the Kind of a plain chat message. Events of any other
// kind (donations, stickers, membership notices, moderation events)
// are never relayed, whatever their text says.
const EventText = "text"

// ChatEvent is one upstream chat item, in feed order.
type ChatEvent struct {
	ID     string
	Author string
	Text   string
	Kind   string
}

// Page is the result of one successful chat fetch.
type Page struct {
	Events []ChatEvent

	// NextCursor is the pagination token for the following fetch.
	// Empty means the upstream did not advance the cursor.
	NextCursor string

	// Interval is the upstream's suggested delay before the next
	// fetch. Zero means no hint; the engine's floor applies either way.
	Interval time.Duration

	// Ended marks that the stream's chat is over. Events on an ended
	// page are still delivered before the stream is torn down.
	Ended bool
}

// ChatSource reads a live chat feed. Implementations must honor ctx
// cancellation; the engine bounds every call with a timeout.
type ChatSource interface {
	// ResolveSession maps a watch target (video id, channel name) to
	// the id of its active chat session. Returns ErrNoLiveChat when
	// the target exists but has no active chat.
	ResolveSession(ctx context.Context, streamID string) (string, error)

	// FetchPage reads one page of chat after cursor. An empty cursor
	// starts from the oldest retained message. Returns
	// ErrQuotaExceeded when the upstream refuses further reads.
	FetchPage(ctx context.Context, sessionID, cursor string) (Page, error)
}

// SessionCloser is implemented by sources that hold per-session
// resources. The engine closes the session on every stream teardown
// path.
type SessionCloser interface {
	CloseSession(sessionID string)
}

// Destination is a capability to post text where a subscriber reads
// it. ID must be stable: it is the subscriber uniqueness key.
// Implementations must be safe for concurrent use.
type Destination interface {
	ID() string
	Deliver(ctx context.Context, text string) (messageID string, err error)
}

// Delivery describes one successfully posted batch, for auditing.
type Delivery struct {
	StreamID      string
	DestinationID string
	MessageID     string
	EventIDs      []string
	Text          string
	DeliveredAt   time.Time
}

// Archive records successful deliveries. Implementations must be safe
// for concurrent use; errors are logged and never block relaying.
type Archive interface {
	RecordDelivery(ctx context.Context, d Delivery) error
}
