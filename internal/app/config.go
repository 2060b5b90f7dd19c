package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"cipherdb/internal/domain"
	"cipherdb/internal/relay"
	"cipherdb/internal/services/database"
	"cipherdb/internal/store"
)

// Config holds runtime wiring options for building the app. It is loaded
// from an optional YAML file; flags override it.
type Config struct {
	Home     string            `yaml:"home"`      // local state directory, e.g. $HOME/.cipherdb
	RelayURL string            `yaml:"relay_url"` // websocket endpoint, e.g. wss://relay.example/v1
	AppID    string            `yaml:"app_id"`
	Remember domain.RememberMe `yaml:"remember"` // local, session or none
	Backend  store.Backend     `yaml:"backend"`  // file or bolt
	LogLevel string            `yaml:"log_level"`

	// Passphrase protects the durable store. It is never read from the
	// file.
	Passphrase string `yaml:"-"`

	Timeouts Timeouts `yaml:"timeouts"`

	// RateLimit is the outbound request rate per second.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	RequireSignedGrants bool `yaml:"require_signed_grants"`
}

// Timeouts groups every duration setting.
type Timeouts struct {
	Connect        time.Duration `yaml:"connect"`
	Request        time.Duration `yaml:"request"`
	Write          time.Duration `yaml:"write"`
	Open           time.Duration `yaml:"open"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	LatencyBuffer  time.Duration `yaml:"latency_buffer"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

func (c *Config) setDefaults() {
	if c.Home == "" {
		if dir, err := os.UserHomeDir(); err == nil {
			c.Home = filepath.Join(dir, ".cipherdb")
		}
	}
	if c.AppID == "" {
		c.AppID = "default"
	}
	if c.Remember == "" {
		c.Remember = domain.RememberLocal
	}
	if c.Backend == "" {
		c.Backend = store.BackendFile
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	t := &c.Timeouts
	if t.Connect <= 0 {
		t.Connect = 10 * time.Second
	}
	if t.Request <= 0 {
		t.Request = 10 * time.Second
	}
	if t.Write <= 0 {
		t.Write = 10 * time.Second
	}
	if t.Open <= 0 {
		t.Open = 10 * time.Second
	}
	if t.PingInterval <= 0 {
		t.PingInterval = 30 * time.Second
	}
	if t.LatencyBuffer <= 0 {
		t.LatencyBuffer = 5 * time.Second
	}
	if t.BackoffInitial <= 0 {
		t.BackoffInitial = time.Second
	}
	if t.BackoffMax <= 0 {
		t.BackoffMax = 30 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 50
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 20
	}
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.RelayURL == "" {
		return errors.New("relay url is required")
	}
	if !c.Remember.Valid() {
		return fmt.Errorf("unknown remember mode %q", c.Remember)
	}
	switch c.Backend {
	case store.BackendFile, store.BackendBolt:
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
	if c.Timeouts.BackoffMax < c.Timeouts.BackoffInitial {
		return errors.New("backoff_max is shorter than backoff_initial")
	}
	return nil
}

// LoadConfig reads path, if it exists, and fills in defaults. A missing
// file yields the defaults.
func LoadConfig(path string) (Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return c, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return c, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	c.setDefaults()
	return c, nil
}

// RelayConfig returns the connection settings.
func (c Config) RelayConfig() relay.Config {
	return relay.Config{
		URL:            c.RelayURL,
		AppID:          c.AppID,
		ConnectTimeout: c.Timeouts.Connect,
		RequestTimeout: c.Timeouts.Request,
		PingInterval:   c.Timeouts.PingInterval,
		LatencyBuffer:  c.Timeouts.LatencyBuffer,
		BackoffInitial: c.Timeouts.BackoffInitial,
		BackoffMax:     c.Timeouts.BackoffMax,
		RateLimit:      rate.Limit(c.RateLimit),
		RateBurst:      c.RateBurst,
	}
}

// DatabaseConfig returns the database service settings.
func (c Config) DatabaseConfig() database.Config {
	return database.Config{
		OpenTimeout:         c.Timeouts.Open,
		WriteTimeout:        c.Timeouts.Write,
		RequireSignedGrants: c.RequireSignedGrants,
	}
}

// StoreOptions returns the local store settings.
func (c Config) StoreOptions(log *slog.Logger) store.Options {
	return store.Options{
		Dir:        c.Home,
		Backend:    c.Backend,
		Passphrase: c.Passphrase,
		Logger:     log,
	}
}

// Logger returns a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
