package relay

import (
	"fmt"
	"strings"
)

// Batch is a group of matching chat events rendered as one outbound
// message: one "**author**: text" line per event, joined by newlines.
type Batch struct {
	Text     string
	EventIDs []string
}

// BuildBatches filters events against prefixes and groups the matches
// into batches of at most maxSize events, preserving feed order. The
// trailing partial batch is sealed as-is; no events match, no batches.
// Pure: no I/O, no shared state.
func BuildBatches(events []ChatEvent, prefixes []string, maxSize int) []Batch {
	if maxSize < 1 {
		maxSize = 1
	}
	var (
		batches []Batch
		lines   []string
		ids     []string
	)
	seal := func() {
		if len(ids) == 0 {
			return
		}
		batches = append(batches, Batch{
			Text:     strings.Join(lines, "\n"),
			EventIDs: ids,
		})
		lines, ids = nil, nil
	}
	for _, ev := range events {
		if !Matches(ev, prefixes) {
			continue
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s", ev.Author, ev.Text))
		ids = append(ids, ev.ID)
		if len(ids) == maxSize {
			seal()
		}
	}
	seal()
	return batches
}
