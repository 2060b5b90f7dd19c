package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cipherdb/internal/domain"
)

// Backend selects the durable store implementation.
type Backend string

const (
	BackendFile Backend = "file"
	BackendBolt Backend = "bolt"
)

// Store is a LocalStore that holds resources.
type Store interface {
	domain.LocalStore
	Close() error
}

// Options configure Open.
type Options struct {
	Dir        string
	Backend    Backend
	Passphrase string
	Logger     *slog.Logger
}

// Open returns the store for mode: durable for RememberLocal, in-memory
// for RememberSession, and one that keeps nothing for RememberNone.
func Open(mode domain.RememberMe, opts Options) (Store, error) {
	switch mode {
	case domain.RememberSession:
		return NewMemoryStore(), nil
	case domain.RememberNone:
		return discardStore{}, nil
	case domain.RememberLocal:
	default:
		return nil, fmt.Errorf("unknown remember-me mode %q", mode)
	}

	if opts.Dir == "" {
		return nil, fmt.Errorf("store dir is required for %q", mode)
	}
	switch opts.Backend {
	case BackendBolt:
		if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		return NewBoltStore(filepath.Join(opts.Dir, "cipherdb.db"), opts.Passphrase, opts.Logger)
	case BackendFile, "":
		return NewFileStore(filepath.Join(opts.Dir, "store"), opts.Passphrase)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
