package app

import (
	"log/slog"

	"cipherdb/internal/domain"
	sessionsvc "cipherdb/internal/services/session"
	"cipherdb/internal/store"
)

// Wire bundles the services built from a Config.
type Wire struct {
	Config  Config
	Log     *slog.Logger
	Session *sessionsvc.Service
}

// NewWire constructs the dependency graph from cfg. confirm answers every
// key-exchange prompt; onAwaitingSeed, if set, is shown the fingerprint
// while the device waits for its seed.
func NewWire(cfg Config, confirm domain.Confirmer, log *slog.Logger, onAwaitingSeed func(domain.Fingerprint), opts ...sessionsvc.Option) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	storeOpts := cfg.StoreOptions(log)

	opts = append([]sessionsvc.Option{sessionsvc.WithLogger(log)}, opts...)
	sess := sessionsvc.New(sessionsvc.Config{
		Relay:          cfg.RelayConfig(),
		Database:       cfg.DatabaseConfig(),
		Remember:       cfg.Remember,
		RequestTimeout: cfg.Timeouts.Request,
		OpenStore: func(mode domain.RememberMe) (store.Store, error) {
			return store.Open(mode, storeOpts)
		},
		OnAwaitingSeed: onAwaitingSeed,
	}, confirm, opts...)

	return &Wire{Config: cfg, Log: log, Session: sess}, nil
}
