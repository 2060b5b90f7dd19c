package relay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
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
)

const wait = 2 * time.Second

// fakeSocket is one in-memory socket. The test plays the relay through
// push, next and hangUp.
type fakeSocket struct {
	in     chan []byte
	out    chan []byte
	peer   chan *relay.CloseError
	closed chan struct{}

	once sync.Once
	mu   sync.Mutex
	code int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		peer:   make(chan *relay.CloseError, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case b := <-s.in:
		return b, nil
	case ce := <-s.peer:
		return nil, ce
	case <-s.closed:
		return nil, &relay.CloseError{Code: s.closeCode()}
	}
}

func (s *fakeSocket) WriteMessage(b []byte) error {
	select {
	case <-s.closed:
		return errors.New("write on closed socket")
	default:
	}
	select {
	case s.out <- b:
		return nil
	case <-s.closed:
		return errors.New("write on closed socket")
	}
}

func (s *fakeSocket) Close(code int, _ string) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.code = code
		s.mu.Unlock()
		close(s.closed)
	})
	return nil
}

func (s *fakeSocket) closeCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// push sends a frame from the relay.
func (s *fakeSocket) push(t *testing.T, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	s.in <- b
}

// hangUp closes the socket from the relay side.
func (s *fakeSocket) hangUp(code int) { s.peer <- &relay.CloseError{Code: code} }

type sentRequest struct {
	RequestID string          `json:"requestId"`
	Action    wire.Action     `json:"action"`
	Params    json.RawMessage `json:"params"`
}

// next returns the next request the client wrote, skipping pongs unless
// they are asked for.
func (s *fakeSocket) next(t *testing.T, want wire.Action) sentRequest {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case b := <-s.out:
			var r sentRequest
			require.NoError(t, json.Unmarshal(b, &r))
			if r.Action == wire.ActionPong && want != wire.ActionPong {
				continue
			}
			require.Equal(t, want, r.Action)
			return r
		case <-deadline:
			t.Fatalf("no %s request", want)
		}
	}
}

func (s *fakeSocket) respond(t *testing.T, id string, status int, data any, failure *errs.Failure) {
	t.Helper()
	msg := map[string]any{"requestId": id, "status": status}
	if data != nil {
		msg["data"] = data
	}
	if failure != nil {
		msg["error"] = failure
	}
	s.push(t, msg)
}

type fakeDialer struct {
	mu      sync.Mutex
	fail    error
	urls    []string
	sockets chan *fakeSocket
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{sockets: make(chan *fakeSocket, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, url string, _ http.Header) (relay.Socket, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	fail := d.fail
	d.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	s := newFakeSocket()
	d.sockets <- s
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) url(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[i]
}

func (d *fakeDialer) nextSocket(t *testing.T) *fakeSocket {
	t.Helper()
	select {
	case s := <-d.sockets:
		return s
	case <-time.After(wait):
		t.Fatal("no dial")
		return nil
	}
}

// fakeRelay holds the relay side of the key handshake for one account.
type fakeRelay struct {
	salts     keys.Salts
	relayPriv domain.X25519Private
	relayPub  domain.X25519Public
	userPub   domain.X25519Public
	challenge []byte
}

func newFakeRelay(t *testing.T, seed keys.Seed) *fakeRelay {
	t.Helper()
	salt := func() []byte {
		b, err := crypto.RandomBytes(keys.SaltSize)
		require.NoError(t, err)
		return b
	}
	r := &fakeRelay{
		salts:     keys.Salts{Encryption: salt(), KeyAgreement: salt(), Authentication: salt()},
		challenge: []byte("prove it"),
	}
	var err error
	r.relayPriv, r.relayPub, err = crypto.GenerateX25519()
	require.NoError(t, err)
	ks, err := keys.DeriveKeySet(seed, r.salts)
	require.NoError(t, err)
	r.userPub = ks.KeyAgreement.Public
	return r
}

func (r *fakeRelay) connection(t *testing.T) map[string]any {
	t.Helper()
	shared, err := crypto.SharedKey(r.relayPriv, r.userPub)
	require.NoError(t, err)
	sealed, err := crypto.Seal(shared[:], r.challenge, nil)
	require.NoError(t, err)
	return map[string]any{
		"route":                      wire.RouteConnection,
		"keySalts":                   r.salts,
		"encryptedValidationMessage": sealed,
		"ecdhPublicKey":              r.relayPub,
	}
}

// handshake plays the relay's side of a successful validation.
func (r *fakeRelay) handshake(t *testing.T, s *fakeSocket) {
	t.Helper()
	s.push(t, r.connection(t))
	req := s.next(t, wire.ActionValidateKey)
	var p wire.ValidateKeyParams
	require.NoError(t, json.Unmarshal(req.Params, &p))
	require.Equal(t, r.challenge, p.ValidationMessage)
	s.respond(t, req.RequestID, http.StatusOK, nil, nil)
}

// events records handler calls.
type events struct {
	mu           sync.Mutex
	states       []relay.State
	connected    chan bool
	seedNeeded   chan struct{}
	seedRequests chan domain.X25519Public
	applies      chan *wire.ApplyTransactions
	reconnecting chan time.Duration
}

func newEvents() *events {
	return &events{
		connected:    make(chan bool, 8),
		seedNeeded:   make(chan struct{}, 8),
		seedRequests: make(chan domain.X25519Public, 8),
		applies:      make(chan *wire.ApplyTransactions, 8),
		reconnecting: make(chan time.Duration, 8),
	}
}

func (e *events) handlers() relay.Handlers {
	return relay.Handlers{
		OnApply:        func(m *wire.ApplyTransactions) { e.applies <- m },
		OnSeedNeeded:   func() { e.seedNeeded <- struct{}{} },
		OnSeedRequest:  func(p domain.X25519Public) { e.seedRequests <- p },
		OnConnected:    func(re bool) { e.connected <- re },
		OnReconnecting: func(d time.Duration) { e.reconnecting <- d },
		OnState: func(s relay.State) {
			e.mu.Lock()
			e.states = append(e.states, s)
			e.mu.Unlock()
		},
	}
}

func (e *events) seen() []relay.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]relay.State(nil), e.states...)
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(wait):
		var zero T
		t.Fatal("timed out waiting for event")
		return zero
	}
}

// syncBuffer is a log sink safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger(w *syncBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
