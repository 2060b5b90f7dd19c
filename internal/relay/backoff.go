package relay

import "time"

// Backoff computes reconnect delays. It doubles from Initial up to Max.
// A relay restart seen before any delay has been taken reconnects at once,
// but only once until Reset.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	cur       time.Duration
	immediate bool
}

// Next returns the delay before the next dial after a close with code.
func (b *Backoff) Next(code int) time.Duration {
	if code == CloseRestart && b.cur == 0 && !b.immediate {
		b.immediate = true
		return 0
	}
	switch {
	case b.cur == 0:
		b.cur = b.Initial
	case b.cur < b.Max:
		b.cur *= 2
	}
	if b.cur > b.Max {
		b.cur = b.Max
	}
	return b.cur
}

// Reset clears the delay after a successful connection.
func (b *Backoff) Reset() {
	b.cur = 0
	b.immediate = false
}
