package database_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
	"cipherdb/internal/protocol/wire"
	"cipherdb/internal/services/database"
)

// fakeRelay keeps databases in memory and broadcasts each appended entry
// to every subscribed device.
type fakeRelay struct {
	mu       sync.Mutex
	next     int
	dbs      map[domain.DatabaseID]*fakeDB
	names    map[domain.Username]map[domain.NameHash]domain.DatabaseID
	users    map[domain.Username]domain.User
	grants   map[domain.Username][]domain.DatabaseGrant
	requests []wire.Action

	// bundleEvery asks the writing device for a bundle once the log has
	// grown by this many entries since the last one.
	bundleEvery int
}

type fakeDB struct {
	id      domain.DatabaseID
	log     []domain.Transaction
	exists  map[domain.ItemKey]bool
	bundle  *wire.Bundle
	members map[domain.Username]member
	subs    map[*fakeDevice]struct{}
}

type member struct {
	hash     domain.NameHash
	key      []byte
	readOnly bool
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		dbs:    map[domain.DatabaseID]*fakeDB{},
		names:  map[domain.Username]map[domain.NameHash]domain.DatabaseID{},
		users:  map[domain.Username]domain.User{},
		grants: map[domain.Username][]domain.DatabaseGrant{},
	}
}

func (r *fakeRelay) count(a wire.Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.requests {
		if got == a {
			n++
		}
	}
	return n
}

func (r *fakeRelay) storedBundle(user domain.Username, hash domain.NameHash) *wire.Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dbs[r.names[user][hash]].bundle
}

// fakeDevice is one signed-in device: the Transport a Service talks to.
type fakeDevice struct {
	relay *fakeRelay
	user  domain.Username
	ks    *keys.KeySet
	svc   *database.Service

	// Guarded by relay.mu.
	hold bool
	held []*wire.ApplyTransactions
	drop int
}

func (d *fakeDevice) KeySet() *keys.KeySet { return d.ks }

func (d *fakeDevice) deliver(m *wire.ApplyTransactions) {
	switch {
	case d.drop > 0:
		d.drop--
	case d.hold:
		d.held = append(d.held, m)
	default:
		d.svc.HandleApply(m)
	}
}

// release delivers everything held back and stops holding.
func (d *fakeDevice) release() {
	d.relay.mu.Lock()
	defer d.relay.mu.Unlock()
	d.hold = false
	for _, m := range d.held {
		d.svc.HandleApply(m)
	}
	d.held = nil
}

func (d *fakeDevice) setHold() {
	d.relay.mu.Lock()
	d.hold = true
	d.relay.mu.Unlock()
}

func (d *fakeDevice) dropNext(n int) {
	d.relay.mu.Lock()
	d.drop = n
	d.relay.mu.Unlock()
}

func (d *fakeDevice) Request(ctx context.Context, action wire.Action, params, out any) error {
	if err := ctx.Err(); err != nil {
		return errs.Normalize(err)
	}
	r := d.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, action)

	var res any
	var err error
	switch p := params.(type) {
	case wire.OpenDatabaseParams:
		err = r.open(d, p)
	case wire.ItemParams:
		res, err = r.write(d, p.DbNameHash, domain.Transaction{Command: domain.Command(action), ItemKey: p.ItemKey, Record: p.Record})
	case wire.BatchParams:
		res, err = r.write(d, p.DbNameHash, domain.Transaction{Command: domain.CommandBatch, Operations: p.Operations})
	case wire.BundleParams:
		db := r.dbs[p.DbID]
		b := p.Bundle
		db.bundle = &b
	case wire.GetPublicKeyParams:
		res = r.users[p.Username]
	case wire.GrantParams:
		r.grants[p.Username] = append(r.grants[p.Username], p.Grant)
	case wire.AcceptParams:
		err = r.accept(d, p)
	case nil:
		if action == wire.ActionGetDatabaseAccessGrants {
			res = wire.Grants{Grants: r.grants[d.user]}
		}
	default:
		err = fmt.Errorf("unexpected %s params %T", action, params)
	}
	if err != nil || out == nil || res == nil {
		return err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (r *fakeRelay) open(d *fakeDevice, p wire.OpenDatabaseParams) error {
	byHash := r.names[d.user]
	if byHash == nil {
		byHash = map[domain.NameHash]domain.DatabaseID{}
		r.names[d.user] = byHash
	}
	id, ok := byHash[p.DbNameHash]
	if !ok {
		if p.NewDatabase == nil {
			return errs.ErrDatabaseNotFound
		}
		r.next++
		id = domain.DatabaseID(fmt.Sprintf("db-%d", r.next))
		byHash[p.DbNameHash] = id
		r.dbs[id] = &fakeDB{
			id:      id,
			exists:  map[domain.ItemKey]bool{},
			members: map[domain.Username]member{d.user: {hash: p.DbNameHash, key: p.NewDatabase.EncryptedDbKey}},
			subs:    map[*fakeDevice]struct{}{},
		}
	}
	db := r.dbs[id]
	db.subs[d] = struct{}{}
	m := db.members[d.user]

	msg := &wire.ApplyTransactions{DbID: id, DbNameHash: m.hash, WrappedKey: m.key, ReadOnly: m.readOnly}
	from := p.ReopenAtSeqNo
	if from == 0 && db.bundle != nil {
		msg.Bundle = db.bundle
		from = db.bundle.SeqNo
	}
	for _, e := range db.log {
		if e.Seq > from {
			msg.Log = append(msg.Log, e)
		}
	}
	d.deliver(msg)
	return nil
}

func (r *fakeRelay) write(d *fakeDevice, hash domain.NameHash, e domain.Transaction) (wire.WriteResult, error) {
	db, ok := r.dbs[r.names[d.user][hash]]
	if !ok {
		return wire.WriteResult{}, errs.ErrDatabaseNotFound
	}
	if db.members[d.user].readOnly {
		return wire.WriteResult{}, errs.ErrDatabaseIsReadOnly
	}
	if e.Command == domain.CommandInsert && db.exists[e.ItemKey] {
		return wire.WriteResult{}, errs.Newf(errs.CodeItemAlreadyExists, "%s", e.ItemKey)
	}
	e.Seq = uint64(len(db.log) + 1)
	db.log = append(db.log, e)
	switch e.Command {
	case domain.CommandInsert:
		db.exists[e.ItemKey] = true
	case domain.CommandDelete:
		delete(db.exists, e.ItemKey)
	}

	since := e.Seq
	if db.bundle != nil {
		since -= db.bundle.SeqNo
	}
	for sub := range db.subs {
		m := db.members[sub.user]
		msg := &wire.ApplyTransactions{DbID: db.id, DbNameHash: m.hash, Log: []domain.Transaction{e}, ReadOnly: m.readOnly}
		msg.BuildBundle = sub == d && r.bundleEvery > 0 && since >= uint64(r.bundleEvery)
		sub.deliver(msg)
	}
	return wire.WriteResult{SeqNo: e.Seq}, nil
}

func (r *fakeRelay) accept(d *fakeDevice, p wire.AcceptParams) error {
	pending := r.grants[d.user]
	for i, g := range pending {
		if g.DatabaseID != p.DbID {
			continue
		}
		db := r.dbs[p.DbID]
		db.members[d.user] = member{hash: p.DbNameHash, key: p.EncryptedDbKey, readOnly: g.ReadOnly}
		if r.names[d.user] == nil {
			r.names[d.user] = map[domain.NameHash]domain.DatabaseID{}
		}
		r.names[d.user][p.DbNameHash] = p.DbID
		r.grants[d.user] = append(pending[:i:i], pending[i+1:]...)
		return nil
	}
	return errs.ErrKeyNotFound
}

// fakeConfirmer answers every prompt with the configured decision.
type fakeConfirmer struct {
	mu      sync.Mutex
	grant   bool
	accept  bool
	prompts []domain.GrantPrompt
}

func (c *fakeConfirmer) ConfirmSeedRequest(context.Context, domain.Fingerprint) (bool, error) {
	return false, nil
}

func (c *fakeConfirmer) ConfirmGrant(_ context.Context, p domain.GrantPrompt) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, p)
	return c.grant, nil
}

func (c *fakeConfirmer) ConfirmAccept(_ context.Context, p domain.GrantPrompt) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, p)
	return c.accept, nil
}

// account derives a key set for a fresh user and registers its public key.
func (r *fakeRelay) account(t *testing.T, user domain.Username) *keys.KeySet {
	t.Helper()
	seed, err := keys.NewSeed()
	require.NoError(t, err)
	salt := func() []byte {
		b, err := crypto.RandomBytes(keys.SaltSize)
		require.NoError(t, err)
		return b
	}
	ks, err := keys.DeriveKeySet(seed, keys.Salts{
		Encryption:     salt(),
		KeyAgreement:   salt(),
		Authentication: salt(),
		Signing:        salt(),
	})
	require.NoError(t, err)
	r.mu.Lock()
	r.users[user] = domain.User{Username: user, PublicKey: ks.KeyAgreement.Public, VerifyingKey: ks.Signing.Public}
	r.mu.Unlock()
	return ks
}

// device signs a device of user in with ks and returns its service.
func (r *fakeRelay) device(t *testing.T, user domain.Username, ks *keys.KeySet, c domain.Confirmer, cfg database.Config) (*database.Service, *fakeDevice) {
	t.Helper()
	if c == nil {
		c = &fakeConfirmer{}
	}
	cfg.Username = user
	d := &fakeDevice{relay: r, user: user, ks: ks}
	svc := database.New(d, c, cfg, slog.New(slog.DiscardHandler))
	d.svc = svc
	t.Cleanup(svc.Close)
	return svc, d
}
