package replica

import (
	"context"
	"sync"
	"time"

	"cipherdb/internal/errs"
)

// Unverified is a local write awaiting the log entry that confirms it.
type Unverified struct {
	baseline uint64
	target   uint64
	seen     map[uint64]error

	once sync.Once
	done chan struct{}
	err  error
}

func newUnverified(baseline uint64) *Unverified {
	return &Unverified{baseline: baseline, seen: map[uint64]error{}, done: make(chan struct{})}
}

// Baseline is the last applied sequence number when the write was submitted.
func (u *Unverified) Baseline() uint64 { return u.baseline }

// Done is closed once the write has settled.
func (u *Unverified) Done() <-chan struct{} { return u.done }

// Err returns the outcome. It is only meaningful after Done is closed.
func (u *Unverified) Err() error {
	<-u.done
	return u.err
}

func (u *Unverified) settle(err error) bool {
	settled := false
	u.once.Do(func() {
		u.err = err
		u.seen = nil
		close(u.done)
		settled = true
	})
	return settled
}

// Submit registers a write against the current state. Every Submit must be
// followed by Wait or Abandon.
func (r *Replica) Submit() *Unverified {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := newUnverified(r.lastApplied)
	if r.closed != nil {
		u.settle(r.closed)
		return u
	}
	r.pending[u] = struct{}{}
	return u
}

// Confirm records the sequence number the relay assigned to u. If that
// entry has already been applied, u settles immediately with its outcome.
// A target at or below u's baseline cannot be u's entry and fails it.
func (r *Replica) Confirm(u *Unverified, target uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[u]; !ok {
		return
	}
	if target <= u.baseline {
		r.settleLocked(u, errs.Newf(errs.CodeRequestFailed,
			"relay assigned no sequence number after %d (got %d)", u.baseline, target))
		return
	}
	u.target = target
	if err, ok := u.seen[target]; ok {
		r.settleLocked(u, err)
		return
	}
	if target <= r.lastApplied {
		// Covered by a bundle rather than an individual entry.
		r.settleLocked(u, nil)
	}
}

// Abandon settles u with err, typically because its request failed.
func (r *Replica) Abandon(u *Unverified, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settleLocked(u, err)
}

// Wait blocks until u settles, timeout elapses or ctx ends, and returns the
// outcome. It always returns.
func (r *Replica) Wait(ctx context.Context, u *Unverified, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-u.done:
	case <-t.C:
		r.Abandon(u, errs.Newf(errs.CodeTimeout, "write not confirmed within %s", timeout))
	case <-ctx.Done():
		r.Abandon(u, errs.Normalize(ctx.Err()))
	}
	return u.Err()
}

// Pending returns the number of unsettled writes.
func (r *Replica) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Close settles every outstanding write with err and rejects later ones.
func (r *Replica) Close(err error) {
	if err == nil {
		err = errs.ErrClosed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = err
	for u := range r.pending {
		r.settleLocked(u, err)
	}
}

func (r *Replica) settleLocked(u *Unverified, err error) {
	delete(r.pending, u)
	u.settle(err)
}

// deliverLocked reports the outcome of the entry at seq to every write
// submitted before it.
func (r *Replica) deliverLocked(seq uint64, err error) {
	for u := range r.pending {
		if seq <= u.baseline {
			continue
		}
		switch {
		case u.target == seq:
			r.settleLocked(u, err)
		case u.target == 0:
			u.seen[seq] = err
		}
	}
}

// coverLocked settles writes whose target is now behind a bundle.
func (r *Replica) coverLocked(seq uint64) {
	for u := range r.pending {
		if u.target != 0 && u.target <= seq {
			r.settleLocked(u, nil)
		}
	}
}
