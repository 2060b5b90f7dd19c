package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
	"cipherdb/internal/protocol/wire"
)

// Config holds the connection settings. Zero durations take defaults.
type Config struct {
	URL      string
	AppID    string
	ClientID string

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	PingInterval   time.Duration
	LatencyBuffer  time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// RateLimit paces outbound requests; zero means the default.
	RateLimit rate.Limit
	RateBurst int
}

func (c *Config) setDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.LatencyBuffer == 0 {
		c.LatencyBuffer = 5 * time.Second
	}
	if c.BackoffInitial == 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 50
	}
	if c.RateBurst == 0 {
		c.RateBurst = 20
	}
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}
}

// Handlers receive inbound events. They run on the connection goroutine and
// must not block; in particular they must not wait on Request.
type Handlers struct {
	OnApply func(*wire.ApplyTransactions)

	// OnSeedNeeded fires when the relay is ready to validate but no seed
	// is held. ProvideSeed resumes the handshake.
	OnSeedNeeded func()

	// OnSeedRequest fires, once Connected, for every device asking for the
	// seed. Requests received earlier are held until then.
	OnSeedRequest func(requester domain.X25519Public)

	OnSeed         func(*wire.ReceiveSeed)
	OnConnected    func(reconnected bool)
	OnReconnecting func(delay time.Duration)
	OnState        func(State)
}

// Credentials identify the session to the relay.
type Credentials struct {
	SessionID string
	// Seed may be zero, in which case the Conn waits in AwaitingKeys.
	Seed keys.Seed
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.log = l }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// Conn is one logical connection to the relay.
type Conn struct {
	cfg    Config
	h      Handlers
	log    *slog.Logger
	dialer Dialer
	lim    *rate.Limiter
	reg    *registry

	events chan func()
	ready  chan struct{}
	done   chan struct{}

	mu      sync.Mutex // guards the fields below for readers off the loop
	started bool
	state   State
	sock    Socket
	keys    *keys.KeySet
	err     error

	// Owned by the loop goroutine.
	creds          Credentials
	gen            uint64
	connected      bool
	hello          *wire.Connection
	backoff        Backoff
	connectTimer   *time.Timer
	connectLeft    time.Duration
	connectDue     time.Time
	heartbeat      *time.Timer
	reconnectTimer *time.Timer
	heldRequests   []domain.X25519Public
}

// New returns an idle connection.
func New(cfg Config, h Handlers, opts ...Option) *Conn {
	cfg.setDefaults()
	c := &Conn{
		cfg:     cfg,
		h:       h,
		log:     slog.Default(),
		dialer:  WebsocketDialer{},
		lim:     rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		reg:     newRegistry(),
		events:  make(chan func(), 64),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		backoff: Backoff{Initial: cfg.BackoffInitial, Max: cfg.BackoffMax},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("component", "relay")
	return c
}

// State returns the current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// KeySet returns the validated key set, or nil before the first Connected.
func (c *Conn) KeySet() *keys.KeySet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys
}

// Done is closed once the connection is Closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection closed, or nil while it is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Connect dials the relay and blocks until the connection is validated or
// fails. Failures before the first Connected are terminal; later drops are
// retried in the background.
func (c *Conn) Connect(ctx context.Context, creds Credentials) error {
	c.mu.Lock()
	if c.started {
		state := c.state
		c.mu.Unlock()
		if state == StateClosed {
			return errs.ErrClosed
		}
		return errs.New(errs.CodeParamsInvalid, "connect called twice")
	}
	c.started = true
	c.mu.Unlock()

	go c.loop()
	c.post(func() {
		if creds.Seed.IsZero() {
			creds.Seed = c.creds.Seed
		}
		c.creds = creds
		c.dial()
	})

	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		_ = c.Close()
		return errs.Normalize(ctx.Err())
	}
}

// ProvideSeed supplies the seed while the connection awaits keys.
func (c *Conn) ProvideSeed(seed keys.Seed) {
	c.post(func() {
		if !c.creds.Seed.IsZero() {
			return
		}
		c.creds.Seed = seed
		if c.stateNow() == StateAwaitingKeys {
			c.validate()
		}
	})
}

// Close closes the connection cleanly. Outstanding requests fail with
// errs.ErrClosed and no reconnect is attempted.
func (c *Conn) Close() error { return c.shutdown(CloseNormal, "client closed") }

// SignOut closes the connection with the sign-out code.
func (c *Conn) SignOut() error { return c.shutdown(CloseSignOut, "signed out") }

func (c *Conn) shutdown(code int, reason string) error {
	c.mu.Lock()
	if !c.started {
		c.started = true
		c.state = StateClosed
		c.err = errs.ErrClosed
		close(c.done)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	c.post(func() { c.terminate(errs.ErrClosed, code, reason) })
	<-c.done
	return nil
}

// Request sends action and waits for its response, decoding the data into
// out when out is non-nil.
func (c *Conn) Request(ctx context.Context, action wire.Action, params, out any) error {
	if err := c.lim.Wait(ctx); err != nil {
		return errs.Normalize(err)
	}

	c.mu.Lock()
	state, sock := c.state, c.sock
	c.mu.Unlock()
	switch {
	case state == StateClosed:
		return errs.ErrClosed.WithAction(string(action))
	case sock == nil:
		return errs.New(errs.CodeServiceUnavailable, "not connected").WithAction(string(action))
	case state != StateConnected && !action.PreValidation():
		return errs.Newf(errs.CodeServiceUnavailable, "connection is %s", state).WithAction(string(action))
	}

	id := newRequestID()
	ch := c.reg.add(id)
	if err := c.write(sock, wire.Request{RequestID: id, Action: action, Params: params}); err != nil {
		c.reg.drop(id)
		return errs.Wrap(errs.CodeServiceUnavailable, err, "send").WithAction(string(action))
	}

	t := time.NewTimer(c.cfg.RequestTimeout)
	defer t.Stop()
	var res result
	select {
	case res = <-ch:
	case <-t.C:
		c.reg.drop(id)
		return errs.Newf(errs.CodeTimeout, "no response within %s", c.cfg.RequestTimeout).WithAction(string(action))
	case <-ctx.Done():
		c.reg.drop(id)
		return errs.Normalize(ctx.Err())
	}
	if res.err != nil {
		return res.err
	}
	if !res.resp.OK() {
		var f errs.Failure
		if res.resp.Failure != nil {
			f = *res.resp.Failure
		}
		return errs.FromResponse(c.log, string(action), res.resp.Status, f)
	}
	if out != nil && len(res.resp.Data) > 0 {
		if err := json.Unmarshal(res.resp.Data, out); err != nil {
			return errs.Wrap(errs.CodeRequestFailed, err, "decode response").WithAction(string(action))
		}
	}
	return nil
}

func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (c *Conn) write(sock Socket, req wire.Request) error {
	b, err := wire.Encode(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Action, err)
	}
	return sock.WriteMessage(b)
}

// post runs fn on the loop goroutine. It reports false once the
// connection is closed.
func (c *Conn) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) loop() {
	defer close(c.done)
	for fn := range c.events {
		fn()
		if c.stateNow() == StateClosed {
			return
		}
	}
}

func (c *Conn) stateNow() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev == s {
		return
	}
	c.log.Debug("state", "from", prev, "to", s)
	if c.h.OnState != nil {
		c.h.OnState(s)
	}
}

func (c *Conn) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("appId", c.cfg.AppID)
	q.Set("sessionId", c.creds.SessionID)
	q.Set("clientId", c.cfg.ClientID)
	if c.connected {
		q.Set("reconnecting", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) dial() {
	c.setState(StateConnecting)
	c.gen++
	gen := c.gen
	c.startConnectTimer(c.cfg.ConnectTimeout)

	target, err := c.endpoint()
	if err != nil {
		c.terminate(errs.Wrap(errs.CodeParamsInvalid, err, "relay url"), 0, "")
		return
	}
	timeout := c.cfg.ConnectTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		sock, err := c.dialer.Dial(ctx, target, nil)
		if !c.post(func() { c.onDialed(gen, sock, err) }) && sock != nil {
			_ = sock.Close(CloseGoingAway, "")
		}
	}()
}

func (c *Conn) onDialed(gen uint64, sock Socket, err error) {
	if gen != c.gen {
		if sock != nil {
			_ = sock.Close(CloseGoingAway, "")
		}
		return
	}
	if err != nil {
		c.log.Warn("dial failed", "err", err)
		c.lost(errs.Wrap(errs.CodeServiceUnavailable, err, "dial relay"), CloseAbnormal)
		return
	}
	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()
	go c.read(gen, sock)
}

func (c *Conn) read(gen uint64, sock Socket) {
	for {
		b, err := sock.ReadMessage()
		if err != nil {
			c.post(func() { c.onSocketClosed(gen, err) })
			return
		}
		if !c.post(func() { c.onMessage(gen, b) }) {
			return
		}
	}
}

func (c *Conn) onSocketClosed(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	code := CloseAbnormal
	var ce *CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	c.log.Info("socket closed", "code", code, "err", err)
	c.dropSocket(0, "")
	if code == CloseSignOut {
		c.terminate(errs.New(errs.CodeUserNotSignedIn, "signed out by relay"), 0, "")
		return
	}
	c.lost(errs.Wrap(errs.CodeServiceUnavailable, err, "connection lost"), code)
}

// lost handles a socket that failed or closed. Before the first Connected
// it is terminal; afterwards it schedules a reconnect.
func (c *Conn) lost(err error, code int) {
	if !c.connected {
		c.terminate(err, CloseGoingAway, "")
		return
	}
	c.dropSocket(CloseGoingAway, "")
	c.stopTimers()
	delay := c.backoff.Next(code)
	c.setState(StateReconnecting)
	c.log.Info("reconnecting", "delay", delay, "code", code)
	if c.h.OnReconnecting != nil {
		c.h.OnReconnecting(delay)
	}
	gen := c.gen
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.post(func() {
			if gen == c.gen && c.stateNow() == StateReconnecting {
				c.dial()
			}
		})
	})
}

// dropSocket forgets the current socket, closing it with code if non-zero.
func (c *Conn) dropSocket(code int, reason string) {
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()
	c.gen++
	if sock != nil && code != 0 {
		_ = sock.Close(code, reason)
	}
}

func (c *Conn) terminate(err error, code int, reason string) {
	if c.stateNow() == StateClosed {
		return
	}
	c.stopTimers()
	if code == 0 {
		code = CloseNormal
	}
	c.dropSocket(code, reason)
	c.reg.failAll(err)

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.setState(StateClosed)
	if !errors.Is(err, errs.ErrClosed) {
		c.log.Warn("connection closed", "err", err)
	}
}

func (c *Conn) onMessage(gen uint64, b []byte) {
	if gen != c.gen {
		return
	}
	m, err := wire.Decode(b)
	if err != nil {
		c.log.Warn("dropping malformed message", "err", err)
		return
	}
	switch m := m.(type) {
	case *wire.Response:
		if !c.reg.resolve(m) {
			c.log.Warn("discarding unmatched response", "requestId", m.RequestID, "status", m.Status)
		}
	case *wire.Connection:
		c.onConnection(m)
	case *wire.Ping:
		c.resetHeartbeat()
		c.mu.Lock()
		sock := c.sock
		c.mu.Unlock()
		if sock != nil {
			if err := c.write(sock, wire.Request{Action: wire.ActionPong}); err != nil {
				c.log.Warn("pong failed", "err", err)
			}
		}
	case *wire.ApplyTransactions:
		if c.h.OnApply != nil {
			c.h.OnApply(m)
		}
	case *wire.ReceiveRequestForSeed:
		if c.stateNow() != StateConnected {
			c.heldRequests = append(c.heldRequests, m.RequesterPublicKey)
			return
		}
		if c.h.OnSeedRequest != nil {
			c.h.OnSeedRequest(m.RequesterPublicKey)
		}
	case *wire.ReceiveSeed:
		if c.h.OnSeed != nil {
			c.h.OnSeed(m)
		}
	case *wire.Unknown:
		c.log.Warn("ignoring unknown route", "route", m.Route)
	}
}

func (c *Conn) onConnection(m *wire.Connection) {
	if c.stateNow() != StateConnecting {
		c.log.Warn("ignoring unexpected connection message", "state", c.stateNow())
		return
	}
	c.hello = m
	if c.creds.Seed.IsZero() {
		c.pauseConnectTimer()
		c.setState(StateAwaitingKeys)
		if c.h.OnSeedNeeded != nil {
			c.h.OnSeedNeeded()
		}
		return
	}
	c.validate()
}

// validate derives the key set and answers the relay's challenge.
func (c *Conn) validate() {
	c.resumeConnectTimer()
	c.setState(StateValidating)

	ks := c.KeySet()
	if ks == nil {
		var err error
		ks, err = keys.DeriveKeySet(c.creds.Seed, c.hello.Salts)
		if err != nil {
			c.terminate(err, 0, "")
			return
		}
		if len(c.hello.WrappedSigningKey) > 0 {
			if err := ks.AdoptSigningKey(c.hello.WrappedSigningKey); err != nil {
				c.log.Warn("stored signing key unusable", "err", err)
			}
		}
	}

	shared, err := crypto.SharedKey(ks.KeyAgreement.Private, c.hello.RelayPublicKey)
	if err != nil {
		c.terminate(errs.Wrap(errs.CodeKeyNotValid, err, "relay key"), 0, "")
		return
	}
	msg, err := crypto.Open(shared[:], c.hello.EncryptedValidationMessage, nil)
	crypto.Wipe32(&shared)
	if err != nil {
		c.terminate(errs.Wrap(errs.CodeKeyNotValid, err, "validation challenge"), 0, "")
		return
	}

	gen := c.gen
	go func() {
		err := c.Request(context.Background(), wire.ActionValidateKey, wire.ValidateKeyParams{ValidationMessage: msg}, nil)
		c.post(func() { c.onValidated(gen, ks, err) })
	}()
}

func (c *Conn) onValidated(gen uint64, ks *keys.KeySet, err error) {
	if gen != c.gen || c.stateNow() != StateValidating {
		return
	}
	if err != nil {
		if errs.KindOf(errs.CodeOf(err)) == errs.KindAuth {
			c.terminate(err, 0, "")
			return
		}
		c.lost(err, CloseAbnormal)
		return
	}

	c.stopConnectTimer()
	reconnected := c.connected
	c.connected = true
	c.backoff.Reset()
	c.mu.Lock()
	c.keys = ks
	c.mu.Unlock()
	c.setState(StateConnected)
	c.resetHeartbeat()
	if !reconnected {
		close(c.ready)
	}
	if c.h.OnConnected != nil {
		c.h.OnConnected(reconnected)
	}
	held := c.heldRequests
	c.heldRequests = nil
	for _, pub := range held {
		if c.h.OnSeedRequest != nil {
			c.h.OnSeedRequest(pub)
		}
	}
}

func (c *Conn) resetHeartbeat() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
	}
	gen := c.gen
	c.heartbeat = time.AfterFunc(c.cfg.PingInterval+c.cfg.LatencyBuffer, func() {
		c.post(func() {
			if gen != c.gen {
				return
			}
			c.log.Warn("heartbeat missed, closing socket")
			c.dropSocket(CloseNoPong, "no ping")
			c.lost(errs.New(errs.CodeServiceUnavailable, "heartbeat missed"), CloseNoPong)
		})
	})
}

func (c *Conn) startConnectTimer(d time.Duration) {
	c.stopConnectTimer()
	c.connectLeft = d
	c.connectDue = time.Now().Add(d)
	gen := c.gen
	c.connectTimer = time.AfterFunc(d, func() {
		c.post(func() { c.onConnectTimeout(gen) })
	})
}

func (c *Conn) pauseConnectTimer() {
	if c.connectTimer == nil {
		return
	}
	c.connectTimer.Stop()
	c.connectTimer = nil
	c.connectLeft = max(time.Until(c.connectDue), 0)
}

func (c *Conn) resumeConnectTimer() {
	if c.connectTimer != nil {
		return
	}
	c.startConnectTimer(c.connectLeft)
}

func (c *Conn) stopConnectTimer() {
	if c.connectTimer != nil {
		c.connectTimer.Stop()
		c.connectTimer = nil
	}
}

func (c *Conn) onConnectTimeout(gen uint64) {
	if gen != c.gen {
		return
	}
	switch c.stateNow() {
	case StateConnecting, StateValidating:
	default:
		return
	}
	c.connectTimer = nil
	err := errs.Newf(errs.CodeConnectTimeout, "not connected within %s", c.cfg.ConnectTimeout)
	if !c.connected {
		c.terminate(err, CloseGoingAway, "connect timeout")
		return
	}
	c.dropSocket(CloseGoingAway, "connect timeout")
	c.lost(err, CloseAbnormal)
}

func (c *Conn) stopTimers() {
	c.stopConnectTimer()
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}
