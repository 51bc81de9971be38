package relay

import "strings"

// Matches reports whether ev should be relayed for a subscriber whose
// effective prefix set is prefixes. Only plain text events can match;
// a token matches anywhere in the text, case-insensitively. Callers
// resolve empty subscriber prefixes to the default set first.
func Matches(ev ChatEvent, prefixes []string) bool {
	if ev.Kind != EventText {
		return false
	}
	text := strings.ToLower(ev.Text)
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
