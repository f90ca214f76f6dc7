package vehicle

import "errors"

// Error taxonomy of the vehicle API. The bridge classifies every failure
// into one of these with errors.Is.
var (
	// ErrUnreachable covers network failures, timeouts and rate limiting.
	ErrUnreachable = errors.New("vehicle api unreachable")
	// ErrAsleep means the vehicle is in its low-power state and needs a wake
	// cycle before it responds.
	ErrAsleep = errors.New("vehicle asleep")
	// ErrUnauthorized means the cached credential was rejected. Recovery
	// requires the external re-auth flow, so this is fatal.
	ErrUnauthorized = errors.New("vehicle api unauthorized")
	// ErrRejected means the vehicle refused the command argument.
	ErrRejected = errors.New("command rejected")
)

// Transient reports whether err warrants a retry with backoff.
func Transient(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrAsleep)
}
