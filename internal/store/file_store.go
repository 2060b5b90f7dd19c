package store

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cipherdb/internal/crypto"
)

const (
	saltFile  = "store.salt"
	valueExt  = ".val"
	saltBytes = 16
)

// FileStore stores each key in its own file under dir.
type FileStore struct {
	dir  string
	seal *sealer
	mu   sync.Mutex
}

// NewFileStore opens (creating if needed) a store in dir. A non-empty
// passphrase seals every value.
func NewFileStore(dir, passphrase string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &FileStore{dir: dir}
	if passphrase == "" {
		return s, nil
	}
	salt, err := readFile(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	if salt == nil {
		if salt, err = crypto.RandomBytes(saltBytes); err != nil {
			return nil, err
		}
		if err := writeFile(filepath.Join(dir, saltFile), salt, 0o600); err != nil {
			return nil, fmt.Errorf("write salt: %w", err)
		}
	}
	if s.seal, err = newSealer(passphrase, salt); err != nil {
		return nil, err
	}
	return s, nil
}

// path maps a key to a file name that is safe on every platform.
func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+valueExt)
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.path(key))
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	if b == nil {
		return nil, false, nil
	}
	v, err := s.seal.open(key, b)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.seal.seal(key, value)
	if err != nil {
		return err
	}
	if err := writeFile(s.path(key), b, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(s.path(key))
}

// Close wipes the passphrase key.
func (s *FileStore) Close() error {
	s.seal.wipe()
	return nil
}
