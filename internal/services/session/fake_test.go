package session_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
	"cipherdb/internal/protocol/wire"
	"cipherdb/internal/relay"
	"cipherdb/internal/services/session"
	"cipherdb/internal/store"
)

const wait = 2 * time.Second

type fakeAccount struct {
	seed  keys.Seed
	salts keys.Salts
	pub   domain.X25519Public
}

// fakeNet plays the relay for every connection of a test. Seed requests
// and seeds are routed between connections of the same account.
type fakeNet struct {
	mu           sync.Mutex
	accounts     map[domain.Username]*fakeAccount
	sessions     map[string]domain.Username
	conns        []*fakeConn
	seedRequests map[domain.Username][]domain.X25519Public
	actions      []wire.Action
	updates      []wire.UpdateUserParams
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		accounts:     map[domain.Username]*fakeAccount{},
		sessions:     map[string]domain.Username{},
		seedRequests: map[domain.Username][]domain.X25519Public{},
	}
}

// account creates user and returns its seed. Its session id is
// "session-" + user.
func (n *fakeNet) account(t *testing.T, user domain.Username) keys.Seed {
	t.Helper()
	seed, err := keys.NewSeed()
	require.NoError(t, err)
	salt := func() []byte {
		b, err := crypto.RandomBytes(keys.SaltSize)
		require.NoError(t, err)
		return b
	}
	salts := keys.Salts{Encryption: salt(), KeyAgreement: salt(), Authentication: salt(), Signing: salt(), KeyWrapping: salt()}
	ks, err := keys.DeriveKeySet(seed, salts)
	require.NoError(t, err)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts[user] = &fakeAccount{seed: seed, salts: salts, pub: ks.KeyAgreement.Public}
	n.sessions["session-"+string(user)] = user
	return seed
}

func (n *fakeNet) count(a wire.Action) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, got := range n.actions {
		if got == a {
			c++
		}
	}
	return c
}

func (n *fakeNet) lastUpdate() wire.UpdateUserParams {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updates[len(n.updates)-1]
}

func (n *fakeNet) connector() session.Connector {
	return func(_ relay.Config, h relay.Handlers) session.Connection {
		return &fakeConn{net: n, h: h, seedCh: make(chan keys.Seed, 1)}
	}
}

// peers returns the other connections of user in state.
func (n *fakeNet) peers(self *fakeConn, user domain.Username, state relay.State) []*fakeConn {
	var out []*fakeConn
	for _, c := range n.conns {
		if c != self && c.username() == user && c.State() == state {
			out = append(out, c)
		}
	}
	return out
}

type fakeConn struct {
	net    *fakeNet
	h      relay.Handlers
	seedCh chan keys.Seed

	mu        sync.Mutex
	user      domain.Username
	state     relay.State
	ks        *keys.KeySet
	signedOut bool
}

func (c *fakeConn) username() domain.Username {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *fakeConn) setState(s relay.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *fakeConn) Connect(ctx context.Context, creds relay.Credentials) error {
	c.net.mu.Lock()
	user, ok := c.net.sessions[creds.SessionID]
	acct := c.net.accounts[user]
	c.net.conns = append(c.net.conns, c)
	c.net.mu.Unlock()
	if !ok {
		c.setState(relay.StateClosed)
		return errs.ErrUserNotSignedIn
	}
	c.mu.Lock()
	c.user = user
	c.state = relay.StateConnecting
	c.mu.Unlock()

	seed := creds.Seed
	if seed.IsZero() {
		c.setState(relay.StateAwaitingKeys)
		c.h.OnSeedNeeded()
		select {
		case seed = <-c.seedCh:
		case <-ctx.Done():
			c.setState(relay.StateClosed)
			return errs.Normalize(ctx.Err())
		}
	}
	ks, err := keys.DeriveKeySet(seed, acct.salts)
	if err != nil || ks.KeyAgreement.Public != acct.pub {
		c.setState(relay.StateClosed)
		return errs.New(errs.CodeKeyNotValid, "validation message does not open")
	}
	c.mu.Lock()
	c.ks = ks
	c.state = relay.StateConnected
	c.mu.Unlock()
	c.h.OnConnected(false)
	return nil
}

func (c *fakeConn) ProvideSeed(seed keys.Seed) {
	select {
	case c.seedCh <- seed:
	default:
	}
}

func (c *fakeConn) Request(_ context.Context, action wire.Action, params, out any) error {
	n := c.net
	user := c.username()
	n.mu.Lock()
	n.actions = append(n.actions, action)
	var res any
	var deliver func()
	switch action {
	case wire.ActionRequestSeed:
		pub := params.(wire.RequestSeedParams).RequesterPublicKey
		if !slices.Contains(n.seedRequests[user], pub) {
			n.seedRequests[user] = append(n.seedRequests[user], pub)
		}
		targets := n.peers(c, user, relay.StateConnected)
		deliver = func() {
			for _, t := range targets {
				t.h.OnSeedRequest(pub)
			}
		}
	case wire.ActionGetRequestsForSeed:
		var reqs []wire.RequestSeedParams
		for _, pub := range n.seedRequests[user] {
			reqs = append(reqs, wire.RequestSeedParams{RequesterPublicKey: pub})
		}
		res = wire.SeedRequests{Requests: reqs}
	case wire.ActionSendSeed:
		p := params.(wire.SendSeedParams)
		n.seedRequests[user] = slices.DeleteFunc(n.seedRequests[user], func(pub domain.X25519Public) bool {
			return pub == p.RequesterPublicKey
		})
		targets := n.peers(c, user, relay.StateAwaitingKeys)
		deliver = func() {
			for _, t := range targets {
				t.h.OnSeed(&wire.ReceiveSeed{SenderPublicKey: p.SenderPublicKey, EncryptedSeed: p.EncryptedSeed})
			}
		}
	case wire.ActionUpdateUser:
		n.updates = append(n.updates, params.(wire.UpdateUserParams))
	}
	n.mu.Unlock()

	if deliver != nil {
		deliver()
	}
	if out == nil || res == nil {
		return nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (c *fakeConn) KeySet() *keys.KeySet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ks
}

func (c *fakeConn) State() relay.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) Close() error {
	c.setState(relay.StateClosed)
	return nil
}

func (c *fakeConn) SignOut() error {
	c.mu.Lock()
	c.signedOut = true
	c.state = relay.StateClosed
	c.mu.Unlock()
	return nil
}

// fakeConfirmer answers seed requests with allow and reports each
// fingerprint it is shown.
type fakeConfirmer struct {
	allow bool
	shown chan domain.Fingerprint
}

func newConfirmer(allow bool) *fakeConfirmer {
	return &fakeConfirmer{allow: allow, shown: make(chan domain.Fingerprint, 8)}
}

func (c *fakeConfirmer) ConfirmSeedRequest(_ context.Context, fp domain.Fingerprint) (bool, error) {
	c.shown <- fp
	return c.allow, nil
}

func (c *fakeConfirmer) ConfirmGrant(context.Context, domain.GrantPrompt) (bool, error) {
	return false, nil
}

func (c *fakeConfirmer) ConfirmAccept(context.Context, domain.GrantPrompt) (bool, error) {
	return false, nil
}

// device is one installation: a service with its own durable store.
type device struct {
	svc      *session.Service
	store    *store.MemoryStore
	awaiting chan domain.Fingerprint
}

func (n *fakeNet) device(t *testing.T, c domain.Confirmer, st *store.MemoryStore) *device {
	t.Helper()
	if c == nil {
		c = newConfirmer(false)
	}
	if st == nil {
		st = store.NewMemoryStore()
	}
	d := &device{store: st, awaiting: make(chan domain.Fingerprint, 8)}
	d.svc = session.New(session.Config{
		Relay:          relay.Config{URL: "ws://relay.test", AppID: "app"},
		Remember:       domain.RememberLocal,
		OpenStore:      func(domain.RememberMe) (store.Store, error) { return st, nil },
		OnAwaitingSeed: func(fp domain.Fingerprint) { d.awaiting <- fp },
	}, c, session.WithConnector(n.connector()), session.WithLogger(slog.New(slog.DiscardHandler)))
	t.Cleanup(func() { _ = d.svc.Close() })
	return d
}

func (d *device) has(t *testing.T, key string) bool {
	t.Helper()
	_, ok, err := d.store.Get(key)
	require.NoError(t, err)
	return ok
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(wait):
		var zero T
		t.Fatal("timed out")
		return zero
	}
}
