package relay

import "errors"

var (
	// ErrNoLiveChat means session resolution found no active chat for
	// the requested stream. Reported to the requesting destination
	// only; no state changes.
	ErrNoLiveChat = errors.New("no active live chat")

	// ErrQuotaExceeded is the upstream's rate-limit signal. Fatal for
	// the affected stream: subscribers are notified and the stream is
	// dropped from the table.
	ErrQuotaExceeded = errors.New("upstream quota exceeded")

	// ErrInvalidFormat means a command carried malformed arguments.
	ErrInvalidFormat = errors.New("invalid format")
)
