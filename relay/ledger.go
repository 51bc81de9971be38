package relay

import "sync"

// DeliveryRecord is one row of a subscriber's delivery history: the
// posted message id and every source event id the post covered.
type DeliveryRecord struct {
	MessageID string
	EventIDs  []string
}

// Ledger is a per-subscriber record of delivered batches. The upstream
// feed may serve overlapping pages across polls, especially after a
// cursor hiccup; the ledger is consulted before every delivery so a
// source event is never posted twice to the same subscriber.
type Ledger struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	records []DeliveryRecord
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// AlreadyDelivered reports whether any id in ids appeared in a
// previously recorded delivery.
func (l *Ledger) AlreadyDelivered(ids []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		if _, ok := l.seen[id]; ok {
			return true
		}
	}
	return false
}

// Record appends a successful delivery. Failed deliveries must not be
// recorded: their events stay eligible if the upstream serves them
// again.
func (l *Ledger) Record(messageID string, ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, DeliveryRecord{MessageID: messageID, EventIDs: ids})
	for _, id := range ids {
		l.seen[id] = struct{}{}
	}
}

// Len returns the number of recorded deliveries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
