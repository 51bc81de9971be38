package relay

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Scheduler is a rate-limited work queue of stream ids. Dequeued ids
// are handed to the fetch callback with a guaranteed minimum gap
// between any two invocations, regardless of how many streams are due,
// so the aggregate fetch rate stays under the upstream quota no matter
// how many streams are tracked. Per-stream pacing is layered on top
// via EnqueueAfter.
type Scheduler struct {
	fetch   func(ctx context.Context, streamID string)
	limiter *rate.Limiter

	mu      sync.Mutex
	pending []string
	queued  map[string]bool
	timers  map[string]*time.Timer

	kick chan struct{}
}

// NewScheduler builds a scheduler that invokes fetch for each dequeued
// stream id, at most once per minGap across all streams.
func NewScheduler(minGap time.Duration, fetch func(ctx context.Context, streamID string)) *Scheduler {
	if minGap <= 0 {
		minGap = time.Second
	}
	return &Scheduler{
		fetch:   fetch,
		limiter: rate.NewLimiter(rate.Every(minGap), 1),
		queued:  make(map[string]bool),
		timers:  make(map[string]*time.Timer),
		kick:    make(chan struct{}, 1),
	}
}

// Enqueue queues streamID for the next free fetch slot. Enqueues for
// an id already in the queue are dropped; a pending delay for the id
// is superseded.
func (s *Scheduler) Enqueue(streamID string) {
	s.mu.Lock()
	if t, ok := s.timers[streamID]; ok {
		t.Stop()
		delete(s.timers, streamID)
	}
	if !s.queued[streamID] {
		s.queued[streamID] = true
		s.pending = append(s.pending, streamID)
	}
	s.mu.Unlock()
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// EnqueueAfter queues streamID once d has elapsed. A later Enqueue or
// Cancel for the same id supersedes the delay.
func (s *Scheduler) EnqueueAfter(streamID string, d time.Duration) {
	if d <= 0 {
		s.Enqueue(streamID)
		return
	}
	s.mu.Lock()
	if t, ok := s.timers[streamID]; ok {
		t.Stop()
	}
	s.timers[streamID] = time.AfterFunc(d, func() {
		s.Enqueue(streamID)
	})
	s.mu.Unlock()
}

// Cancel drops streamID from the queue and aborts any pending delay.
// An id whose fetch is already in flight is not interrupted; callers
// guard against results for canceled streams.
func (s *Scheduler) Cancel(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[streamID]; ok {
		t.Stop()
		delete(s.timers, streamID)
	}
	if s.queued[streamID] {
		delete(s.queued, streamID)
		for i, id := range s.pending {
			if id == streamID {
				s.pending = append(s.pending[:i], s.pending[i+1:]...)
				break
			}
		}
	}
}

// Pending reports the number of ids waiting in the queue and the
// number parked on a per-stream delay.
func (s *Scheduler) Pending() (queued, delayed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), len(s.timers)
}

// Run drains the queue until ctx is canceled. Each dequeued id is
// fetched on its own goroutine so one slow stream never starves the
// rest; the limiter still spaces out launches.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		id, ok := s.next()
		if !ok {
			select {
			case <-ctx.Done():
				s.drainTimers()
				return
			case <-s.kick:
				continue
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			s.drainTimers()
			return
		}
		go s.fetch(ctx, id)
	}
}

func (s *Scheduler) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return "", false
	}
	id := s.pending[0]
	s.pending = s.pending[1:]
	delete(s.queued, id)
	return id, true
}

func (s *Scheduler) drainTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.pending = nil
	for id := range s.queued {
		delete(s.queued, id)
	}
}
