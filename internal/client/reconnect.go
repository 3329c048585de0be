package client

import "time"

// delayFor maps an attempt count onto the configured backoff sequence. The
// last entry repeats once the count runs past the end of the sequence.
func delayFor(sequence []time.Duration, attempt int) time.Duration {
	if len(sequence) == 0 {
		return time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(sequence) {
		attempt = len(sequence) - 1
	}
	return sequence[attempt]
}
