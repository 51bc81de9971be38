package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/tl-relay/telemetry"
)

// Defaults tuned for the YouTube live chat quota: one fetch every two
// seconds across all streams, each stream polled at most every twenty.
const (
	DefaultMaxBatch     = 5
	DefaultPollFloor    = 20 * time.Second
	DefaultDrainGap     = 2 * time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// DefaultPrefixes apply to subscribers that never set their own.
var DefaultPrefixes = []string{"[EN]", "EN:"}

// Options configures an Engine. Zero fields fall back to the defaults
// above.
type Options struct {
	Source  ChatSource
	Archive Archive      // optional delivery audit, nil disables
	Logger  *slog.Logger // defaults to slog.Default()

	DefaultPrefixes []string
	MaxBatch        int
	PollFloor       time.Duration
	DrainGap        time.Duration
	FetchTimeout    time.Duration
}

type subscriber struct {
	dest     Destination
	prefixes []string // empty means use the engine defaults
	ledger   *Ledger
	since    time.Time
}

type stream struct {
	id        string
	sessionID string
	cursor    string
	interval  time.Duration
	started   time.Time
	subs      []*subscriber
}

// Engine is the subscription table and stream lifecycle controller.
// All tracking state lives behind its mutex; upstream calls run
// outside the lock under a bounded timeout, and the table is mutated
// only when a call resolves.
type Engine struct {
	source  ChatSource
	archive Archive
	sched   *Scheduler
	log     *slog.Logger

	defaults     []string
	maxBatch     int
	floor        time.Duration
	fetchTimeout time.Duration

	mu      sync.Mutex
	streams map[string]*stream

	started time.Time
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		source:       opts.Source,
		archive:      opts.Archive,
		log:          opts.Logger,
		defaults:     opts.DefaultPrefixes,
		maxBatch:     opts.MaxBatch,
		floor:        opts.PollFloor,
		fetchTimeout: opts.FetchTimeout,
		streams:      make(map[string]*stream),
		started:      time.Now(),
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if len(e.defaults) == 0 {
		e.defaults = DefaultPrefixes
	}
	if e.maxBatch < 1 {
		e.maxBatch = DefaultMaxBatch
	}
	if e.floor <= 0 {
		e.floor = DefaultPollFloor
	}
	if e.fetchTimeout <= 0 {
		e.fetchTimeout = DefaultFetchTimeout
	}
	gap := opts.DrainGap
	if gap <= 0 {
		gap = DefaultDrainGap
	}
	e.sched = NewScheduler(gap, e.pollOnce)
	return e
}

// Run drains the poll queue until ctx is canceled.
func (e *Engine) Run(ctx context.Context) { e.sched.Run(ctx) }

// Started reports when the engine was constructed.
func (e *Engine) Started() time.Time { return e.started }

// QueueDepth reports streams queued for a fetch slot and streams
// parked on their poll interval.
func (e *Engine) QueueDepth() (queued, delayed int) { return e.sched.Pending() }

// Watch subscribes dest to streamID, resolving the chat session and
// tracking the stream on first subscription. Repeat calls for the same
// (stream, destination) pair do not duplicate the subscriber. The
// destination is always told the outcome; the returned session id is
// informational.
func (e *Engine) Watch(ctx context.Context, streamID string, dest Destination) (string, error) {
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		e.notify(ctx, dest, "Provide a video URL or id to watch.")
		return "", ErrInvalidFormat
	}

	e.mu.Lock()
	_, tracked := e.streams[streamID]
	e.mu.Unlock()

	var sessionID string
	if !tracked {
		rctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
		sid, err := e.source.ResolveSession(rctx, streamID)
		cancel()
		if err != nil || sid == "" {
			if err == nil {
				err = ErrNoLiveChat
			} else if !errors.Is(err, ErrNoLiveChat) {
				err = fmt.Errorf("%w: %v", ErrNoLiveChat, err)
			}
			e.log.Info("watch refused", "stream", streamID, "destination", dest.ID(), "err", err)
			e.notify(ctx, dest, fmt.Sprintf("No active live chat found for %s.", streamID))
			return "", err
		}
		sessionID = sid
	}

	created := false
	e.mu.Lock()
	st, ok := e.streams[streamID]
	if !ok {
		if sessionID == "" {
			// Tracked at first glance but gone before we re-locked;
			// the stream ended in between.
			e.mu.Unlock()
			e.notify(ctx, dest, fmt.Sprintf("No active live chat found for %s.", streamID))
			return "", ErrNoLiveChat
		}
		st = &stream{id: streamID, sessionID: sessionID, interval: e.floor, started: time.Now()}
		e.streams[streamID] = st
		created = true
	}
	var sub *subscriber
	for _, s := range st.subs {
		if s.dest.ID() == dest.ID() {
			sub = s
			break
		}
	}
	if sub == nil {
		sub = &subscriber{dest: dest, ledger: NewLedger(), since: time.Now()}
		st.subs = append(st.subs, sub)
	}
	sessionID = st.sessionID
	prefixes := e.effectivePrefixes(sub)
	n := len(e.streams)
	e.mu.Unlock()

	telemetry.SetStreamsWatched(n)
	if created {
		e.sched.Enqueue(streamID)
		e.log.Info("tracking stream", "stream", streamID, "session", sessionID)
	}
	e.notify(ctx, dest, fmt.Sprintf("Now watching %s. Messages containing %s will be relayed here.",
		streamID, strings.Join(prefixes, ", ")))
	return sessionID, nil
}

// Unwatch removes dest's subscriptions across every tracked stream and
// destroys streams left without subscribers. It never errors; a
// destination with no subscriptions just gets told so.
func (e *Engine) Unwatch(ctx context.Context, dest Destination) int {
	id := dest.ID()
	removed := 0
	var stopped []string
	var sessions []string

	e.mu.Lock()
	for sid, st := range e.streams {
		for i, s := range st.subs {
			if s.dest.ID() == id {
				st.subs = append(st.subs[:i], st.subs[i+1:]...)
				removed++
				break
			}
		}
		if len(st.subs) == 0 {
			delete(e.streams, sid)
			stopped = append(stopped, sid)
			sessions = append(sessions, st.sessionID)
		}
	}
	n := len(e.streams)
	e.mu.Unlock()

	for _, sid := range stopped {
		e.sched.Cancel(sid)
		e.log.Info("stream orphaned, dropped", "stream", sid)
	}
	for _, sess := range sessions {
		e.closeSession(sess)
	}
	telemetry.SetStreamsWatched(n)
	if removed > 0 {
		e.notify(ctx, dest, fmt.Sprintf("Stopped watching %d stream(s).", removed))
	} else {
		e.notify(ctx, dest, "This channel isn't watching any streams.")
	}
	return removed
}

// SetPrefixes replaces (never merges) the prefix set on every
// subscription dest holds. At least one non-empty token is required;
// otherwise the prior set stays and ErrInvalidFormat is returned.
func (e *Engine) SetPrefixes(ctx context.Context, dest Destination, tokens []string) error {
	clean := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) == 0 {
		e.notify(ctx, dest, "Provide at least one prefix token, e.g. [EN] or EN:.")
		return ErrInvalidFormat
	}

	id := dest.ID()
	e.mu.Lock()
	for _, st := range e.streams {
		for _, s := range st.subs {
			if s.dest.ID() == id {
				s.prefixes = append([]string(nil), clean...)
			}
		}
	}
	e.mu.Unlock()

	e.notify(ctx, dest, "Relaying messages containing: "+strings.Join(clean, ", "))
	return nil
}

// pollOnce is the scheduler's fetch callback: one page fetch for one
// stream, classified into the success / ended / quota / transient
// transitions.
func (e *Engine) pollOnce(ctx context.Context, streamID string) {
	e.mu.Lock()
	st, ok := e.streams[streamID]
	if !ok {
		e.mu.Unlock()
		return
	}
	sessionID, cursor, interval := st.sessionID, st.cursor, st.interval
	e.mu.Unlock()

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "relay", "relay.poll",
		telemetry.StreamAttr(streamID), telemetry.SessionAttr(sessionID))
	defer span.End()
	log := e.log.With("corr", telemetry.GetCorrelation(ctx))

	telemetry.PollsTotal.Inc()
	var (
		page Page
		err  error
	)
	telemetry.TimeFunc(telemetry.FetchDuration, func() {
		fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
		page, err = e.source.FetchPage(fctx, sessionID, cursor)
	})

	switch {
	case errors.Is(err, ErrQuotaExceeded):
		telemetry.QuotaStops.Inc()
		telemetry.RecordError(span, err)
		log.Warn("upstream quota exceeded, dropping stream", "stream", streamID, "err", err)
		e.stopStream(ctx, streamID, fmt.Sprintf("Relay for %s stopped: upstream quota exceeded. Try again later.", streamID))
	case err != nil:
		// Transient: no state change, no subscriber noise. Retried at
		// the stream's own cadence.
		telemetry.FetchErrors.Inc()
		telemetry.RecordError(span, err)
		log.Warn("chat fetch failed, will retry", "stream", streamID, "err", err)
		e.requeue(streamID, interval)
	default:
		telemetry.SetSpanSuccess(span)
		e.applyPage(ctx, log, streamID, page)
	}
}

// subView is a consistent snapshot of one subscriber taken under the
// table lock, so deliveries can run without holding it.
type subView struct {
	dest     Destination
	prefixes []string
	ledger   *Ledger
}

func (e *Engine) applyPage(ctx context.Context, log *slog.Logger, streamID string, page Page) {
	e.mu.Lock()
	st, ok := e.streams[streamID]
	if !ok {
		// Unwatched while the fetch was in flight.
		e.mu.Unlock()
		return
	}
	if page.NextCursor != "" {
		st.cursor = page.NextCursor
	}
	st.interval = e.floor
	if page.Interval > e.floor {
		st.interval = page.Interval
	}
	interval := st.interval
	views := make([]subView, 0, len(st.subs))
	for _, s := range st.subs {
		views = append(views, subView{dest: s.dest, prefixes: e.effectivePrefixes(s), ledger: s.ledger})
	}
	e.mu.Unlock()

	for _, v := range views {
		e.deliverBatches(ctx, log, streamID, page.Events, v)
	}

	if page.Ended {
		telemetry.StreamsEnded.Inc()
		e.stopStream(ctx, streamID, fmt.Sprintf("Stream %s has ended. Relay stopped.", streamID))
		return
	}
	e.requeue(streamID, interval)
}

func (e *Engine) deliverBatches(ctx context.Context, log *slog.Logger, streamID string, events []ChatEvent, v subView) {
	for _, b := range BuildBatches(events, v.prefixes, e.maxBatch) {
		telemetry.EventsMatched.Add(float64(len(b.EventIDs)))
		if v.ledger.AlreadyDelivered(b.EventIDs) {
			telemetry.DuplicatesSkipped.Inc()
			continue
		}
		var (
			msgID string
			err   error
		)
		telemetry.TimeFunc(telemetry.DeliveryDuration, func() {
			dctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
			defer cancel()
			dctx, span := telemetry.StartSpan(dctx, "relay", "relay.deliver",
				telemetry.StreamAttr(streamID), telemetry.DestinationAttr(v.dest.ID()))
			defer span.End()
			msgID, err = v.dest.Deliver(dctx, b.Text)
			telemetry.RecordError(span, err)
		})
		if err != nil {
			// Log and drop. The batch stays out of the ledger, so the
			// events remain eligible if the upstream serves them again.
			telemetry.DeliveriesFailed.Inc()
			log.Warn("batch delivery failed", "stream", streamID, "destination", v.dest.ID(), "events", len(b.EventIDs), "err", err)
			continue
		}
		v.ledger.Record(msgID, b.EventIDs)
		telemetry.BatchesDelivered.Inc()
		if e.archive != nil {
			rec := Delivery{
				StreamID:      streamID,
				DestinationID: v.dest.ID(),
				MessageID:     msgID,
				EventIDs:      b.EventIDs,
				Text:          b.Text,
				DeliveredAt:   time.Now().UTC(),
			}
			if aerr := e.archive.RecordDelivery(ctx, rec); aerr != nil {
				log.Warn("archiving delivery failed", "stream", streamID, "err", aerr)
			}
		}
	}
}

// stopStream removes streamID from the table, tells every subscriber
// why, and releases the source session. Safe to call for a stream
// already gone.
func (e *Engine) stopStream(ctx context.Context, streamID, text string) {
	e.mu.Lock()
	st, ok := e.streams[streamID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.streams, streamID)
	dests := make([]Destination, 0, len(st.subs))
	for _, s := range st.subs {
		dests = append(dests, s.dest)
	}
	sessionID := st.sessionID
	n := len(e.streams)
	e.mu.Unlock()

	e.sched.Cancel(streamID)
	telemetry.SetStreamsWatched(n)
	for _, d := range dests {
		e.notify(ctx, d, text)
	}
	e.closeSession(sessionID)
	e.log.Info("stream dropped", "stream", streamID, "subscribers", len(dests))
}

// requeue re-enqueues a stream that is still tracked.
func (e *Engine) requeue(streamID string, d time.Duration) {
	e.mu.Lock()
	_, ok := e.streams[streamID]
	e.mu.Unlock()
	if ok {
		e.sched.EnqueueAfter(streamID, d)
	}
}

// notify posts operational text to one destination. Failures are
// logged and dropped; notifications never touch tracking state.
func (e *Engine) notify(ctx context.Context, dest Destination, text string) {
	nctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	if _, err := dest.Deliver(nctx, text); err != nil {
		e.log.Warn("notification failed", "destination", dest.ID(), "err", err)
	}
}

func (e *Engine) closeSession(sessionID string) {
	if sc, ok := e.source.(SessionCloser); ok {
		sc.CloseSession(sessionID)
	}
}

// effectivePrefixes resolves a subscriber's prefix set, falling back
// to the engine defaults. Callers hold e.mu.
func (e *Engine) effectivePrefixes(s *subscriber) []string {
	if len(s.prefixes) > 0 {
		return s.prefixes
	}
	return e.defaults
}

// StreamStatus is a point-in-time view of one tracked stream.
type StreamStatus struct {
	StreamID     string             `json:"stream_id"`
	SessionID    string             `json:"session_id"`
	PollInterval string             `json:"poll_interval"`
	Started      time.Time          `json:"started"`
	Subscribers  []SubscriberStatus `json:"subscribers"`
}

// SubscriberStatus describes one subscription on a tracked stream.
type SubscriberStatus struct {
	Destination string    `json:"destination"`
	Prefixes    []string  `json:"prefixes"`
	Deliveries  int       `json:"deliveries"`
	Since       time.Time `json:"since"`
}

// Snapshot returns the tracked streams sorted by id.
func (e *Engine) Snapshot() []StreamStatus {
	e.mu.Lock()
	out := make([]StreamStatus, 0, len(e.streams))
	for _, st := range e.streams {
		ss := StreamStatus{
			StreamID:     st.id,
			SessionID:    st.sessionID,
			PollInterval: st.interval.String(),
			Started:      st.started,
		}
		for _, s := range st.subs {
			ss.Subscribers = append(ss.Subscribers, SubscriberStatus{
				Destination: s.dest.ID(),
				Prefixes:    e.effectivePrefixes(s),
				Deliveries:  s.ledger.Len(),
				Since:       s.since,
			})
		}
		out = append(out, ss)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}
