package relay

import "testing"

func TestLedgerSuppressesOverlap(t *testing.T) {
	l := NewLedger()
	if l.AlreadyDelivered([]string{"1", "2"}) {
		t.Fatalf("fresh ledger must not report deliveries")
	}
	l.Record("m1", []string{"1", "2"})
	if !l.AlreadyDelivered([]string{"2", "3"}) {
		t.Fatalf("any overlap with a recorded delivery must suppress")
	}
	if l.AlreadyDelivered([]string{"3", "4"}) {
		t.Fatalf("disjoint id set wrongly suppressed")
	}
	l.Record("m2", []string{"3", "4"})
	if got := l.Len(); got != 2 {
		t.Fatalf("expected 2 recorded deliveries, got %d", got)
	}
}
