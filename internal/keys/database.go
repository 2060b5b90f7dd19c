package keys

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
)

const (
	dbEncryptionInfo = "cipherdb/db/encryption"
	dbItemIDInfo     = "cipherdb/db/item-id"
)

// DatabaseKey is the symmetric key of one database. The raw key is what
// gets wrapped for owners and grantees; two sub-keys are expanded from it.
type DatabaseKey struct {
	raw     [32]byte
	enc     [32]byte
	itemIDs [32]byte
}

// NewDatabaseKey generates a fresh database key.
func NewDatabaseKey() (*DatabaseKey, error) {
	raw, err := crypto.RandomBytes(32)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(raw)
	return DatabaseKeyFromBytes(raw)
}

// DatabaseKeyFromBytes rebuilds a database key from its raw form.
func DatabaseKeyFromBytes(raw []byte) (*DatabaseKey, error) {
	if len(raw) != 32 {
		return nil, errs.Newf(errs.CodeKeyMaterialInvalid, "database key must be 32 bytes, got %d", len(raw))
	}
	k := &DatabaseKey{}
	copy(k.raw[:], raw)
	for _, sub := range []struct {
		dst  *[32]byte
		info string
	}{{&k.enc, dbEncryptionInfo}, {&k.itemIDs, dbItemIDInfo}} {
		r := hkdf.New(sha256.New, k.raw[:], nil, []byte(sub.info))
		if _, err := io.ReadFull(r, sub.dst[:]); err != nil {
			return nil, fmt.Errorf("hkdf %s: %w", sub.info, err)
		}
	}
	return k, nil
}

// Bytes returns a copy of the raw key for wrapping.
func (k *DatabaseKey) Bytes() []byte { return append([]byte(nil), k.raw[:]...) }

// ItemKey blinds an item id.
func (k *DatabaseKey) ItemKey(itemID string) domain.ItemKey {
	return domain.ItemKey(crypto.HashString(k.itemIDs[:], itemID))
}

// Encrypt seals data under the database encryption key.
func (k *DatabaseKey) Encrypt(data, aad []byte) ([]byte, error) {
	return crypto.Seal(k.enc[:], data, aad)
}

// Decrypt opens data sealed by Encrypt.
func (k *DatabaseKey) Decrypt(sealed, aad []byte) ([]byte, error) {
	return crypto.Open(k.enc[:], sealed, aad)
}

// WrapDatabaseKey seals the raw database key under the owner's encryption
// key, bound to the database's name hash.
func (ks *KeySet) WrapDatabaseKey(k *DatabaseKey, nameHash domain.NameHash) ([]byte, error) {
	return crypto.Seal(ks.EncryptionKey[:], k.raw[:], []byte(nameHash))
}

// UnwrapDatabaseKey reverses WrapDatabaseKey.
func (ks *KeySet) UnwrapDatabaseKey(blob []byte, nameHash domain.NameHash) (*DatabaseKey, error) {
	raw, err := crypto.Open(ks.EncryptionKey[:], blob, []byte(nameHash))
	if err != nil {
		return nil, errs.Wrap(errs.CodeKeyNotValid, err, "database key")
	}
	defer crypto.Wipe(raw)
	return DatabaseKeyFromBytes(raw)
}
