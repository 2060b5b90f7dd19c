package database

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
	"cipherdb/internal/protocol/bundle"
	"cipherdb/internal/protocol/keyexchange"
	"cipherdb/internal/protocol/wire"
	"cipherdb/internal/replica"
)

// Transport is the part of the relay connection the service needs.
type Transport interface {
	Request(ctx context.Context, action wire.Action, params, out any) error
	KeySet() *keys.KeySet
}

// Config tunes the service. Zero values take defaults.
type Config struct {
	// Username is the signed-in user, recorded as the sender of grants.
	Username domain.Username

	OpenTimeout  time.Duration
	WriteTimeout time.Duration
	ChunkSize    int

	// RequireSignedGrants rejects grants without a valid signature.
	RequireSignedGrants bool
}

func (c *Config) setDefaults() {
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = bundle.DefaultChunkSize
	}
}

// Service implements domain.DatabaseService.
type Service struct {
	t       Transport
	confirm domain.Confirmer
	cfg     Config
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	byName map[string]*dbState
	byHash map[domain.NameHash]*dbState
}

var _ domain.DatabaseService = (*Service)(nil)

// New returns a service bound to t. Close releases it.
func New(t Transport, confirm domain.Confirmer, cfg Config, log *slog.Logger) *Service {
	cfg.setDefaults()
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		t:       t,
		confirm: confirm,
		cfg:     cfg,
		log:     log.With("component", "database"),
		ctx:     ctx,
		cancel:  cancel,
		byName:  map[string]*dbState{},
		byHash:  map[domain.NameHash]*dbState{},
	}
}

// dbState is one opened database.
type dbState struct {
	name  string
	hash  domain.NameHash
	queue *replica.Queue

	ready chan struct{}
	once  sync.Once

	mu       sync.Mutex
	id       domain.DatabaseID
	replica  *replica.Replica
	readOnly bool
	init     bool
	err      error
	onChange func([]domain.Item)
}

func (st *dbState) markReady(err error) {
	st.once.Do(func() {
		st.mu.Lock()
		st.err = err
		st.mu.Unlock()
		close(st.ready)
	})
}

func (st *dbState) isReady() bool {
	select {
	case <-st.ready:
		return true
	default:
		return false
	}
}

func (st *dbState) notify(items []domain.Item) {
	st.mu.Lock()
	fn := st.onChange
	st.mu.Unlock()
	if fn != nil {
		fn(items)
	}
}

func (st *dbState) snapshot() (*replica.Replica, domain.DatabaseID, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.replica, st.id, st.readOnly
}

func (s *Service) keySet() (*keys.KeySet, error) {
	ks := s.t.KeySet()
	if ks == nil {
		return nil, errs.New(errs.CodeUserNotSignedIn, "not connected")
	}
	return ks, nil
}

// Open subscribes to the database called name, creating it if it does not
// exist, and waits for its first delivery. onChange, if set, receives the
// ordered items after every applied delivery.
func (s *Service) Open(ctx context.Context, name string, onChange func([]domain.Item)) error {
	if err := validateName(name); err != nil {
		return err
	}
	ks, err := s.keySet()
	if err != nil {
		return err
	}
	hash := ks.HashName(name)

	s.mu.Lock()
	st, ok := s.byName[name]
	if ok && st.isReady() {
		st.mu.Lock()
		failed := st.err != nil
		st.mu.Unlock()
		if failed {
			st.queue.Close()
			ok = false
		}
	}
	if !ok {
		st = &dbState{name: name, hash: hash, queue: replica.NewQueue(), ready: make(chan struct{})}
		s.byName[name] = st
		s.byHash[hash] = st
		go st.queue.Run(s.ctx)
	}
	s.mu.Unlock()

	st.mu.Lock()
	st.onChange = onChange
	st.mu.Unlock()

	if st.isReady() {
		if onChange != nil {
			if r, _, _ := st.snapshot(); r != nil {
				onChange(r.Items())
			}
		}
		return nil
	}
	if err := s.subscribe(ctx, st); err != nil {
		return err
	}

	t := time.NewTimer(s.cfg.OpenTimeout)
	defer t.Stop()
	select {
	case <-st.ready:
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.err
	case <-t.C:
		return errs.Newf(errs.CodeTimeout, "database %q not delivered within %s", name, s.cfg.OpenTimeout)
	case <-ctx.Done():
		return errs.Normalize(ctx.Err())
	}
}

// subscribe sends OpenDatabase. A fresh key and sealed name go with every
// request; the relay keeps them only when it creates the database.
func (s *Service) subscribe(ctx context.Context, st *dbState) error {
	ks, err := s.keySet()
	if err != nil {
		return err
	}
	dk, err := keys.NewDatabaseKey()
	if err != nil {
		return err
	}
	wrapped, err := ks.WrapDatabaseKey(dk, st.hash)
	if err != nil {
		return err
	}
	sealedName, err := ks.Encrypt([]byte(st.name), []byte(st.hash))
	if err != nil {
		return err
	}
	p := wire.OpenDatabaseParams{
		DbNameHash:  st.hash,
		NewDatabase: &wire.NewDatabase{EncryptedDbKey: wrapped, EncryptedDbName: sealedName},
	}
	if r, _, _ := st.snapshot(); r != nil {
		p.ReopenAtSeqNo = r.LastAppliedSeq()
	}
	return s.t.Request(ctx, wire.ActionOpenDatabase, p, nil)
}

// HandleApply queues a delivery for its database. It does not block.
func (s *Service) HandleApply(m *wire.ApplyTransactions) {
	s.mu.Lock()
	st, ok := s.byHash[m.DbNameHash]
	s.mu.Unlock()
	if !ok {
		s.log.Warn("delivery for a database that is not open", "dbNameHash", m.DbNameHash)
		return
	}
	if !st.queue.Enqueue(func() { s.apply(st, m) }) {
		s.log.Debug("dropping delivery for closed database", "db", st.name)
	}
}

// apply runs on the database queue.
func (s *Service) apply(st *dbState, m *wire.ApplyTransactions) {
	log := s.log.With("db", st.name)

	st.mu.Lock()
	r := st.replica
	st.id = m.DbID
	st.readOnly = m.ReadOnly
	st.mu.Unlock()

	if r == nil {
		if len(m.WrappedKey) == 0 {
			log.Warn("first delivery carries no database key")
			return
		}
		ks, err := s.keySet()
		if err != nil {
			st.markReady(err)
			return
		}
		dk, err := ks.UnwrapDatabaseKey(m.WrappedKey, st.hash)
		if err != nil {
			log.Error("cannot unwrap database key", "err", err)
			st.markReady(err)
			return
		}
		r = replica.New(st.name, dk, replica.WithLogger(s.log), replica.WithOnChange(st.notify))
		st.mu.Lock()
		st.replica = r
		st.mu.Unlock()
	}

	if m.Bundle != nil && r.LastAppliedSeq() == 0 {
		snap, err := bundle.Open(m.Bundle, r.Key(), m.DbID)
		if err != nil {
			log.Error("cannot open bundle", "seq", m.Bundle.SeqNo, "err", err)
			st.markReady(err)
			return
		}
		r.ApplyBundle(snap)
	}
	r.ApplyLogEntries(m.Log)

	st.mu.Lock()
	st.init = true
	st.mu.Unlock()
	st.markReady(nil)

	if m.BuildBundle {
		go s.uploadBundle(st)
	}
	if r.Stale() {
		r.ClearStale()
		log.Info("gap in log, resubscribing", "lastApplied", r.LastAppliedSeq())
		go s.resubscribe(st)
	}
}

func (s *Service) resubscribe(st *dbState) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.OpenTimeout)
	defer cancel()
	if err := s.subscribe(ctx, st); err != nil {
		s.log.Warn("resubscribe failed", "db", st.name, "err", err)
	}
}

func (s *Service) uploadBundle(st *dbState) {
	r, id, _ := st.snapshot()
	if r == nil {
		return
	}
	snap := r.Snapshot()
	if snap.Seq == 0 {
		return
	}
	b, err := bundle.Build(snap, r.Key(), id, s.cfg.ChunkSize)
	if err != nil {
		s.log.Error("build bundle", "db", st.name, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WriteTimeout)
	defer cancel()
	err = s.t.Request(ctx, wire.ActionBundle, wire.BundleParams{DbID: id, DbNameHash: st.hash, Bundle: *b}, nil)
	if err != nil {
		s.log.Warn("upload bundle", "db", st.name, "seq", snap.Seq, "err", err)
		return
	}
	s.log.Debug("bundle uploaded", "db", st.name, "seq", snap.Seq, "chunks", len(b.Chunks))
}

// OnReconnecting marks every database for resubscription.
func (s *Service) OnReconnecting() {
	for _, st := range s.states() {
		st.mu.Lock()
		st.init = false
		st.mu.Unlock()
	}
}

// OnConnected resubscribes every database opened before a reconnect, from
// its last applied sequence number.
func (s *Service) OnConnected(reconnected bool) {
	if !reconnected {
		return
	}
	for _, st := range s.states() {
		if !st.isReady() {
			continue
		}
		st.mu.Lock()
		stale := !st.init
		st.mu.Unlock()
		if stale {
			go s.resubscribe(st)
		}
	}
}

func (s *Service) states() []*dbState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*dbState, 0, len(s.byName))
	for _, st := range s.byName {
		out = append(out, st)
	}
	return out
}

func (s *Service) opened(name string) (*dbState, *replica.Replica, error) {
	s.mu.Lock()
	st, ok := s.byName[name]
	s.mu.Unlock()
	if !ok || !st.isReady() {
		return nil, nil, errs.Newf(errs.CodeDatabaseNotOpen, "%q", name)
	}
	r, _, _ := st.snapshot()
	if r == nil {
		return nil, nil, errs.Newf(errs.CodeDatabaseNotOpen, "%q", name)
	}
	return st, r, nil
}

// Items returns the items of an open database in log order.
func (s *Service) Items(db string) ([]domain.Item, error) {
	_, r, err := s.opened(db)
	if err != nil {
		return nil, err
	}
	return r.Items(), nil
}

// Insert adds an item. An empty itemID gets a random one, which is
// returned.
func (s *Service) Insert(ctx context.Context, db, itemID string, item json.RawMessage) (string, error) {
	if itemID == "" {
		itemID = uuid.NewString()
	}
	return itemID, s.write(ctx, db, []domain.WriteOp{{Command: domain.CommandInsert, ItemID: itemID, Item: item}}, false)
}

// Update replaces an item.
func (s *Service) Update(ctx context.Context, db, itemID string, item json.RawMessage) error {
	return s.write(ctx, db, []domain.WriteOp{{Command: domain.CommandUpdate, ItemID: itemID, Item: item}}, false)
}

// Delete removes an item.
func (s *Service) Delete(ctx context.Context, db, itemID string) error {
	return s.write(ctx, db, []domain.WriteOp{{Command: domain.CommandDelete, ItemID: itemID}}, false)
}

// PutTransaction applies ops atomically: either every operation passes
// validation on the relay's log or none is applied.
func (s *Service) PutTransaction(ctx context.Context, db string, ops []domain.WriteOp) error {
	return s.write(ctx, db, ops, true)
}

// write validates, seals and sends ops, then waits for the resulting log
// entry to be applied locally.
//
// Steps:
//  1. Validate input; nothing invalid reaches the relay.
//  2. Check the ops against the local replica so obvious conflicts fail
//     fast.
//  3. Seal each record under the database key with the next version.
//  4. Register the write, send it and learn its sequence number.
//  5. Wait for that entry's outcome.
func (s *Service) write(ctx context.Context, db string, ops []domain.WriteOp, batch bool) error {
	if batch {
		if err := validateBatch(ops); err != nil {
			return err
		}
	} else if err := validateOp(ops[0]); err != nil {
		return err
	}
	if err := validateName(db); err != nil {
		return err
	}
	st, r, err := s.opened(db)
	if err != nil {
		return err
	}
	if _, _, ro := st.snapshot(); ro {
		return errs.Newf(errs.CodeDatabaseIsReadOnly, "%q", db)
	}

	sealed := make([]domain.Operation, 0, len(ops))
	for _, op := range ops {
		cur, exists := r.Version(op.ItemID)
		rec := domain.ItemRecord{ID: op.ItemID, Item: op.Item, Version: 1}
		switch op.Command {
		case domain.CommandInsert:
			if exists {
				return errs.Newf(errs.CodeItemAlreadyExists, "item %q", op.ItemID)
			}
		default:
			if !exists {
				return errs.Newf(errs.CodeItemDoesNotExist, "item %q", op.ItemID)
			}
			rec.Version = cur + 1
		}
		ik := r.Key().ItemKey(op.ItemID)
		b, err := replica.SealRecord(r.Key(), ik, rec)
		if err != nil {
			return err
		}
		sealed = append(sealed, domain.Operation{Command: op.Command, ItemKey: ik, Record: b})
	}

	u := r.Submit()
	var res wire.WriteResult
	if batch {
		err = s.t.Request(ctx, wire.ActionBatchTransaction, wire.BatchParams{DbNameHash: st.hash, Operations: sealed}, &res)
	} else {
		op := sealed[0]
		err = s.t.Request(ctx, wire.Action(op.Command), wire.ItemParams{DbNameHash: st.hash, ItemKey: op.ItemKey, Record: op.Record}, &res)
	}
	if err != nil {
		r.Abandon(u, err)
		return err
	}
	r.Confirm(u, res.SeqNo)
	return r.Wait(ctx, u, s.cfg.WriteTimeout)
}

// Share offers db to another user after a human confirms the recipient's
// fingerprint.
func (s *Service) Share(ctx context.Context, db string, user domain.Username, readOnly bool) error {
	if user == "" {
		return errs.ErrUsernameMissing
	}
	st, r, err := s.opened(db)
	if err != nil {
		return err
	}
	_, id, ro := st.snapshot()
	if ro && !readOnly {
		return errs.New(errs.CodeDatabaseIsReadOnly, "read-only databases can only be shared read-only")
	}
	ks, err := s.keySet()
	if err != nil {
		return err
	}

	var peer domain.User
	if err := s.t.Request(ctx, wire.ActionGetPublicKey, wire.GetPublicKeyParams{Username: user}, &peer); err != nil {
		return err
	}
	if peer.PublicKey.IsZero() {
		return errs.Newf(errs.CodeUserNotFound, "%q", user)
	}

	ok, err := s.confirm.ConfirmGrant(ctx, domain.GrantPrompt{
		Database:    db,
		Peer:        user,
		Fingerprint: crypto.Fingerprint(peer.PublicKey.Slice()),
		ReadOnly:    readOnly,
	})
	if err != nil {
		return errs.Normalize(err)
	}
	if !ok {
		return errs.Newf(errs.CodeGrantDeclined, "sharing %q with %s", db, user)
	}

	g, err := keyexchange.WrapDatabaseKey(keyexchange.GrantInput{
		DatabaseID:   id,
		NameHash:     st.hash,
		Name:         db,
		Sender:       s.cfg.Username,
		SenderKeys:   ks.KeyAgreement,
		RecipientPub: peer.PublicKey,
		Key:          r.Key(),
		ReadOnly:     readOnly,
		Signing:      ks.Signing,
	})
	if err != nil {
		return err
	}
	return s.t.Request(ctx, wire.ActionGrantDatabaseAccess, wire.GrantParams{Username: user, DbNameHash: st.hash, Grant: g}, nil)
}

// AcceptGrants fetches pending grants and accepts each one a human
// confirms. It returns how many were accepted.
func (s *Service) AcceptGrants(ctx context.Context) (int, error) {
	ks, err := s.keySet()
	if err != nil {
		return 0, err
	}
	var res wire.Grants
	if err := s.t.Request(ctx, wire.ActionGetDatabaseAccessGrants, nil, &res); err != nil {
		return 0, err
	}

	accepted := 0
	for _, g := range res.Grants {
		log := s.log.With("dbId", g.DatabaseID, "sender", g.Sender)
		if err := keyexchange.VerifyGrant(g, ks.KeyAgreement.Public, s.cfg.RequireSignedGrants); err != nil {
			log.Warn("rejecting grant", "err", err)
			continue
		}
		dk, name, err := keyexchange.UnwrapDatabaseKey(ks.KeyAgreement.Private, g)
		if err != nil {
			log.Warn("cannot open grant", "err", err)
			continue
		}
		ok, err := s.confirm.ConfirmAccept(ctx, domain.GrantPrompt{
			Database:    name,
			Peer:        g.Sender,
			Fingerprint: keyexchange.GrantFingerprint(g),
			ReadOnly:    g.ReadOnly,
		})
		if err != nil {
			return accepted, errs.Normalize(err)
		}
		if !ok {
			log.Info("grant declined")
			continue
		}

		hash := ks.HashName(name)
		wrapped, err := ks.WrapDatabaseKey(dk, hash)
		if err != nil {
			return accepted, err
		}
		sealedName, err := ks.Encrypt([]byte(name), []byte(hash))
		if err != nil {
			return accepted, err
		}
		err = s.t.Request(ctx, wire.ActionAcceptDatabaseAccess, wire.AcceptParams{
			DbID:            g.DatabaseID,
			DbNameHash:      hash,
			EncryptedDbKey:  wrapped,
			EncryptedDbName: sealedName,
		}, nil)
		if err != nil {
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

// Close stops every database queue and settles pending writes with
// errs.ErrClosed.
func (s *Service) Close() {
	s.cancel()
	for _, st := range s.states() {
		st.queue.Close()
		if r, _, _ := st.snapshot(); r != nil {
			r.Close(errs.ErrClosed)
		}
		st.markReady(errs.ErrClosed)
	}
}
