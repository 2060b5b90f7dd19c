package replica

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
)

// Outcome is the result of applying one log entry.
type Outcome struct {
	Seq uint64
	Err error
}

// Replica is the local copy of one database.
//
// ApplyBundle and ApplyLogEntries must be called from a single goroutine at
// a time (see Queue). Reads and write tracking are safe from any goroutine.
type Replica struct {
	name     string
	key      *keys.DatabaseKey
	log      *slog.Logger
	onChange func([]domain.Item)

	mu          sync.RWMutex
	items       map[string]*domain.StoredItem
	index       index
	lastApplied uint64
	stale       bool
	pending     map[*Unverified]struct{}
	closed      error
}

// Option configures a Replica.
type Option func(*Replica)

// WithLogger sets the logger. The replica adds a "db" attribute.
func WithLogger(l *slog.Logger) Option {
	return func(r *Replica) { r.log = l }
}

// WithOnChange sets a callback invoked with the ordered items after every
// call that changed state.
func WithOnChange(fn func([]domain.Item)) Option {
	return func(r *Replica) { r.onChange = fn }
}

// New returns an empty replica for the database called name.
func New(name string, key *keys.DatabaseKey, opts ...Option) *Replica {
	r := &Replica{
		name:    name,
		key:     key,
		log:     slog.Default(),
		items:   map[string]*domain.StoredItem{},
		pending: map[*Unverified]struct{}{},
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("db", name)
	return r
}

// Name returns the database name.
func (r *Replica) Name() string { return r.name }

// Key returns the database key.
func (r *Replica) Key() *keys.DatabaseKey { return r.key }

// SetOnChange replaces the change callback. It must not be called while
// entries are being applied.
func (r *Replica) SetOnChange(fn func([]domain.Item)) { r.onChange = fn }

// LastAppliedSeq returns the sequence number of the last applied entry.
func (r *Replica) LastAppliedSeq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastApplied
}

// Stale reports whether a gap in the log has been observed since the last
// ClearStale.
func (r *Replica) Stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stale
}

// ClearStale resets the stale flag, typically after resubscribing.
func (r *Replica) ClearStale() {
	r.mu.Lock()
	r.stale = false
	r.mu.Unlock()
}

// Items returns the items in index order. It never fails.
func (r *Replica) Items() []domain.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Item, 0, len(r.index))
	for _, p := range r.index {
		out = append(out, domain.Item{ID: p.id, Payload: r.items[p.id].Payload})
	}
	return out
}

// Item returns one item.
func (r *Replica) Item(id string) (domain.Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return domain.Item{}, false
	}
	return domain.Item{ID: id, Payload: it.Payload}, true
}

// Version returns the stored version of an item.
func (r *Replica) Version(id string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return 0, false
	}
	return it.Version, true
}

// Snapshot copies the current state for bundling.
func (r *Replica) Snapshot() domain.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := domain.Snapshot{Seq: r.lastApplied, Items: make(map[string]domain.StoredItem, len(r.items))}
	for id, it := range r.items {
		cp := *it
		if it.OpIndex != nil {
			op := *it.OpIndex
			cp.OpIndex = &op
		}
		s.Items[id] = cp
	}
	return s
}

// ApplyBundle replaces the state with a snapshot. It only applies before
// any log entry has been applied and reports whether it did.
func (r *Replica) ApplyBundle(s domain.Snapshot) bool {
	r.mu.Lock()
	if r.lastApplied != 0 {
		last := r.lastApplied
		r.mu.Unlock()
		r.log.Warn("ignoring bundle received after log entries", "bundleSeq", s.Seq, "lastApplied", last)
		return false
	}
	r.items = make(map[string]*domain.StoredItem, len(s.Items))
	ps := make([]position, 0, len(s.Items))
	for id, it := range s.Items {
		cp := it
		r.items[id] = &cp
		ps = append(ps, position{seq: it.Seq, op: opOf(it.OpIndex), id: id})
	}
	r.index.reset(ps)
	r.lastApplied = s.Seq
	r.coverLocked(s.Seq)
	r.mu.Unlock()

	r.log.Debug("bundle applied", "seq", s.Seq, "items", len(s.Items))
	r.changed()
	return true
}

// ApplyLogEntries applies entries in ascending sequence order, each fully
// decrypted, validated and applied before the next. Entries that are not
// exactly one past the last applied sequence number are skipped.
//
// The returned outcomes cover applied entries only; a rejected mutation
// still advances the sequence.
func (r *Replica) ApplyLogEntries(entries []domain.Transaction) []Outcome {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b domain.Transaction) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	var out []Outcome
	for _, e := range sorted {
		last := r.LastAppliedSeq()
		switch {
		case e.Seq <= last:
			r.log.Warn("skipping already applied log entry", "seq", e.Seq, "lastApplied", last)
			continue
		case e.Seq != last+1:
			r.log.Warn("skipping out-of-sequence log entry", "seq", e.Seq, "lastApplied", last)
			r.mu.Lock()
			r.stale = true
			r.mu.Unlock()
			continue
		}

		muts, err := r.prepare(e)
		r.mu.Lock()
		if err == nil {
			err = r.applyLocked(e.Seq, muts)
		}
		r.lastApplied = e.Seq
		r.deliverLocked(e.Seq, err)
		r.mu.Unlock()

		if err != nil {
			r.log.Debug("log entry rejected", "seq", e.Seq, "command", e.Command, "code", errs.CodeOf(err))
		}
		out = append(out, Outcome{Seq: e.Seq, Err: err})
	}
	if len(out) > 0 {
		r.changed()
	}
	return out
}

func (r *Replica) changed() {
	if r.onChange != nil {
		r.onChange(r.Items())
	}
}

type mutation struct {
	cmd     domain.Command
	id      string
	op      *int
	payload json.RawMessage
	version uint64
}

// prepare decrypts an entry into mutations. Rollbacks and unknown commands
// yield none.
func (r *Replica) prepare(e domain.Transaction) ([]mutation, error) {
	switch e.Command {
	case domain.CommandInsert, domain.CommandUpdate, domain.CommandDelete:
		m, err := r.open(e.Command, e.ItemKey, e.Record, nil)
		if err != nil {
			return nil, err
		}
		return []mutation{m}, nil
	case domain.CommandBatch:
		if len(e.Operations) == 0 {
			return nil, errs.ErrOperationsMissing
		}
		muts := make([]mutation, 0, len(e.Operations))
		for i, op := range e.Operations {
			switch op.Command {
			case domain.CommandInsert, domain.CommandUpdate, domain.CommandDelete:
			default:
				return nil, errs.Newf(errs.CodeCommandNotRecognized, "batch operation %d: %q", i, op.Command)
			}
			m, err := r.open(op.Command, op.ItemKey, op.Record, &i)
			if err != nil {
				return nil, err
			}
			muts = append(muts, m)
		}
		return muts, nil
	case domain.CommandRollback:
		return nil, nil
	default:
		r.log.Warn("ignoring unrecognised command", "seq", e.Seq, "command", e.Command)
		return nil, nil
	}
}

func (r *Replica) open(cmd domain.Command, key domain.ItemKey, sealed []byte, op *int) (mutation, error) {
	rec, err := OpenRecord(r.key, key, sealed)
	if err != nil {
		return mutation{}, err
	}
	m := mutation{cmd: cmd, id: rec.ID, payload: rec.Item, version: rec.Version}
	if op != nil {
		i := *op
		m.op = &i
	}
	return m, nil
}

// applyLocked validates every mutation against the current state, then
// applies them all.
func (r *Replica) applyLocked(seq uint64, muts []mutation) error {
	ids := make(map[string]struct{}, len(muts))
	for _, m := range muts {
		if _, dup := ids[m.id]; dup {
			return errs.Newf(errs.CodeOperationsConflict, "item %q appears twice in one batch", m.id)
		}
		ids[m.id] = struct{}{}
		if err := r.validateLocked(m); err != nil {
			return err
		}
	}
	for _, m := range muts {
		r.mutateLocked(seq, m)
	}
	return nil
}

func (r *Replica) validateLocked(m mutation) error {
	cur, exists := r.items[m.id]
	switch m.cmd {
	case domain.CommandInsert:
		if exists {
			return errs.Newf(errs.CodeItemAlreadyExists, "item %q", m.id)
		}
	case domain.CommandUpdate, domain.CommandDelete:
		if !exists {
			return errs.Newf(errs.CodeItemDoesNotExist, "item %q", m.id)
		}
		if m.version <= cur.Version {
			return &errs.Error{
				Code:    errs.CodeItemUpdateConflict,
				Message: "item " + m.id + " was changed by another write",
			}
		}
	}
	return nil
}

// mutateLocked applies m. An item keeps the position of the entry that
// inserted it; updates only replace its payload and version.
func (r *Replica) mutateLocked(seq uint64, m mutation) {
	cur, exists := r.items[m.id]
	switch m.cmd {
	case domain.CommandDelete:
		if exists {
			r.index.remove(position{seq: cur.Seq, op: opOf(cur.OpIndex), id: m.id})
			delete(r.items, m.id)
		}
	case domain.CommandUpdate:
		cur.Payload = m.payload
		cur.Version = m.version
	case domain.CommandInsert:
		r.items[m.id] = &domain.StoredItem{Seq: seq, OpIndex: m.op, Payload: m.payload, Version: 1}
		r.index.insert(position{seq: seq, op: opOf(m.op), id: m.id})
	}
}
