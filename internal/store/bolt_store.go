package store

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"cipherdb/internal/crypto"
)

var (
	bucketValues = []byte("values")
	bucketMeta   = []byte("meta")
	metaSalt     = []byte("salt")
)

// BoltStore keeps every key in one bbolt database file.
type BoltStore struct {
	db   *bbolt.DB
	seal *sealer
	log  *slog.Logger
}

// NewBoltStore opens the database at path. A non-empty passphrase seals
// every value.
func NewBoltStore(path, passphrase string, log *slog.Logger) (*BoltStore, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &BoltStore{db: db, log: log}

	var salt []byte
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketValues); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketValues, err)
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketMeta, err)
		}
		if passphrase == "" {
			return nil
		}
		if v := meta.Get(metaSalt); v != nil {
			salt = bytes.Clone(v)
			return nil
		}
		if salt, err = crypto.RandomBytes(saltBytes); err != nil {
			return err
		}
		return meta.Put(metaSalt, salt)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if s.seal, err = newSealer(passphrase, salt); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("opened bolt store", "path", path, "sealed", s.seal != nil)
	return s, nil
}

func (s *BoltStore) Get(key string) ([]byte, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketValues).Get([]byte(key)); v != nil {
			// Values are only valid inside the transaction.
			raw = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	if raw == nil {
		return nil, false, nil
	}
	v, err := s.seal.open(key, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *BoltStore) Set(key string, value []byte) error {
	b, err := s.seal.seal(key, value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketValues).Put([]byte(key), b)
	})
}

func (s *BoltStore) Remove(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketValues).Delete([]byte(key))
	})
}

// Close closes the database and wipes the passphrase key.
func (s *BoltStore) Close() error {
	s.seal.wipe()
	s.log.Debug("closing bolt store")
	return s.db.Close()
}
