package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
	"cipherdb/internal/protocol/wire"
	"cipherdb/internal/relay"
	"cipherdb/internal/services/database"
	"cipherdb/internal/store"
)

// Connection is the relay connection a session drives. *relay.Conn
// implements it.
type Connection interface {
	Connect(ctx context.Context, creds relay.Credentials) error
	ProvideSeed(seed keys.Seed)
	Request(ctx context.Context, action wire.Action, params, out any) error
	KeySet() *keys.KeySet
	State() relay.State
	Close() error
	SignOut() error
}

// Connector builds a connection for one sign-in.
type Connector func(relay.Config, relay.Handlers) Connection

// Config configures a Service.
type Config struct {
	Relay    relay.Config
	Database database.Config

	// Remember is used when SignInParams leaves RememberMe empty.
	Remember domain.RememberMe

	// OpenStore returns the local store for a remember-me mode.
	OpenStore func(domain.RememberMe) (store.Store, error)

	// OnAwaitingSeed is told the fingerprint to compare on another device
	// while this one waits for the seed.
	OnAwaitingSeed func(domain.Fingerprint)

	// RequestTimeout bounds the requests the session sends on its own.
	RequestTimeout time.Duration
}

// Service implements domain.SessionService.
type Service struct {
	cfg     Config
	confirm domain.Confirmer
	log     *slog.Logger
	connect Connector

	mu      sync.Mutex
	conn    Connection
	db      *database.Service
	store   store.Store
	record  *domain.SessionRecord
	seed    keys.Seed
	seedReq *domain.SeedRequest
	asked   map[domain.X25519Public]struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ domain.SessionService = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithConnector replaces how connections are built.
func WithConnector(c Connector) Option {
	return func(s *Service) { s.connect = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New returns a signed-out service.
func New(cfg Config, confirm domain.Confirmer, opts ...Option) *Service {
	if cfg.Remember == "" {
		cfg.Remember = domain.RememberSession
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	s := &Service{cfg: cfg, confirm: confirm, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "session")
	if s.connect == nil {
		log := s.log
		s.connect = func(c relay.Config, h relay.Handlers) Connection {
			return relay.New(c, h, relay.WithLogger(log))
		}
	}
	if s.cfg.OpenStore == nil {
		s.cfg.OpenStore = func(m domain.RememberMe) (store.Store, error) {
			return store.Open(m, store.Options{Logger: s.log})
		}
	}
	return s
}

// SignIn connects a device for p.Username and blocks until the relay has
// validated its keys.
//
// The seed comes from, in order: p.Seed, the seed remembered for the
// user, the password backup in p, and finally other signed-in devices of
// the account. In the last case SignIn waits until a device answers or
// ProvideSeed is called.
func (s *Service) SignIn(ctx context.Context, p domain.SignInParams) error {
	if p.Username == "" {
		return errs.ErrUsernameMissing
	}
	if p.SessionID == "" {
		return errs.New(errs.CodeParamsInvalid, "session id is required")
	}
	mode := p.RememberMe
	if mode == "" {
		mode = s.cfg.Remember
	}
	if !mode.Valid() {
		return errs.Newf(errs.CodeParamsInvalid, "remember-me %q", mode)
	}

	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return errs.New(errs.CodeParamsInvalid, "already signed in")
	}
	st, err := s.cfg.OpenStore(mode)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.store = st
	s.record = &domain.SessionRecord{
		RelayURL:   s.cfg.Relay.URL,
		AppID:      s.cfg.Relay.AppID,
		Username:   p.Username,
		UserID:     p.UserID,
		SessionID:  p.SessionID,
		RememberMe: mode,
		CreatedUTC: time.Now().UTC().Unix(),
	}
	s.asked = map[domain.X25519Public]struct{}{}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	seed, err := s.findSeed(p)
	if err != nil {
		s.reset()
		return err
	}

	conn := s.connect(s.cfg.Relay, s.handlers())
	dbCfg := s.cfg.Database
	dbCfg.Username = p.Username
	db := database.New(conn, s.confirm, dbCfg, s.log)
	s.mu.Lock()
	s.conn, s.db, s.seed = conn, db, seed
	s.mu.Unlock()

	if err := conn.Connect(ctx, relay.Credentials{SessionID: p.SessionID, Seed: seed}); err != nil {
		s.log.Warn("sign-in failed", "user", p.Username, "err", err)
		s.reset()
		return err
	}

	if err := s.persist(); err != nil {
		s.log.Error("persist session", "err", err)
	}
	s.log.Info("signed in", "user", p.Username, "remember", mode)
	return nil
}

// findSeed returns the first seed available without asking another
// device, or a zero seed.
func (s *Service) findSeed(p domain.SignInParams) (keys.Seed, error) {
	if p.Seed != "" {
		return keys.ParseSeed(p.Seed)
	}
	if seed, ok, err := s.rememberedSeed(p.Username); err != nil {
		return keys.Seed{}, err
	} else if ok {
		return seed, nil
	}
	if p.Password != "" && len(p.BackupBlob) > 0 {
		pk, err := keys.DeriveFromPassword(p.Password, p.BackupSalt)
		if err != nil {
			return keys.Seed{}, err
		}
		defer pk.Wipe()
		return keys.RecoverSeed(pk, p.BackupBlob)
	}
	return keys.Seed{}, nil
}

// Resume signs in again with the session remembered on this device.
func (s *Service) Resume(ctx context.Context) error {
	st, err := s.cfg.OpenStore(domain.RememberLocal)
	if err != nil {
		return err
	}
	b, ok, err := st.Get(s.sessionKey())
	_ = st.Close()
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.CodeUserNotSignedIn, "no remembered session")
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return errs.Wrap(errs.CodeParamsInvalid, err, "session record")
	}
	return s.SignIn(ctx, domain.SignInParams{
		Username:   rec.Username,
		UserID:     rec.UserID,
		SessionID:  rec.SessionID,
		RememberMe: rec.RememberMe,
	})
}

func (s *Service) handlers() relay.Handlers {
	return relay.Handlers{
		OnApply: func(m *wire.ApplyTransactions) {
			if db := s.databases(); db != nil {
				db.HandleApply(m)
			}
		},
		OnSeedNeeded:  func() { go s.requestSeed() },
		OnSeedRequest: func(pub domain.X25519Public) { go s.answerSeedRequest(pub) },
		OnSeed:        func(m *wire.ReceiveSeed) { go s.receiveSeed(m) },
		OnConnected: func(reconnected bool) {
			if db := s.databases(); db != nil {
				db.OnConnected(reconnected)
			}
			go s.fetchSeedRequests()
		},
		OnReconnecting: func(delay time.Duration) {
			if db := s.databases(); db != nil {
				db.OnReconnecting()
			}
		},
		OnState: func(st relay.State) { s.log.Debug("connection state", "state", st) },
	}
}

func (s *Service) databases() *database.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Databases returns the database service of the signed-in device.
func (s *Service) Databases() (*database.Service, error) {
	if db := s.databases(); db != nil {
		return db, nil
	}
	return nil, errs.ErrUserNotSignedIn
}

// Fingerprint returns the fingerprint of the signed-in account's public
// key, for comparison by other users.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	conn, err := s.active()
	if err != nil {
		return "", err
	}
	ks := conn.KeySet()
	if ks == nil {
		return "", errs.ErrUserNotSignedIn
	}
	return ks.Fingerprint(), nil
}

// Seed returns the seed of the signed-in account.
func (s *Service) Seed() (keys.Seed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.seed.IsZero() {
		return keys.Seed{}, errs.ErrUserNotSignedIn
	}
	return s.seed, nil
}

// State returns the connection state, or Idle when signed out.
func (s *Service) State() relay.State {
	conn, err := s.active()
	if err != nil {
		return relay.StateIdle
	}
	return conn.State()
}

func (s *Service) active() (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, errs.ErrUserNotSignedIn
	}
	return s.conn, nil
}

func (s *Service) request(action wire.Action, params, out any) error {
	conn, err := s.active()
	if err != nil {
		return err
	}
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(base, s.cfg.RequestTimeout)
	defer cancel()
	return conn.Request(ctx, action, params, out)
}

// SignOut tells the relay, closes the connection and forgets the session
// record and any pending seed request. The remembered seed stays so the
// next sign-in on this device needs no other device.
func (s *Service) SignOut(ctx context.Context) error {
	conn, err := s.active()
	if err != nil {
		return err
	}
	if err := conn.Request(ctx, wire.ActionSignOut, nil, nil); err != nil {
		s.log.Warn("relay sign-out failed", "err", err)
	}
	_ = conn.SignOut()
	s.forget(s.sessionKey(), s.seedRequestKey())
	s.reset()
	s.log.Info("signed out")
	return nil
}

// Close closes the connection without signing out.
func (s *Service) Close() error {
	s.reset()
	return nil
}

// reset drops everything tied to the current sign-in.
func (s *Service) reset() {
	s.mu.Lock()
	conn, db, st, cancel := s.conn, s.db, s.store, s.cancel
	s.conn, s.db, s.store, s.cancel = nil, nil, nil, nil
	s.record, s.seedReq, s.asked = nil, nil, nil
	s.seed.Wipe()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if db != nil {
		db.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if st != nil {
		if err := st.Close(); err != nil {
			s.log.Warn("close store", "err", err)
		}
	}
}
