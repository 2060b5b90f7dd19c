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

// SaltSize is the length of each per-purpose salt.
const SaltSize = 16

// Derivation contexts. Each one is used for exactly one key.
const (
	ContextEncryption     = "cipherdb/encryption"
	ContextKeyAgreement   = "cipherdb/key-agreement"
	ContextAuthentication = "cipherdb/authentication"
	ContextSigning        = "cipherdb/signing"
	ContextKeyWrapping    = "cipherdb/key-wrapping"
)

// Salts are the per-purpose salts the relay hands out on connection.
// Signing and KeyWrapping are optional; an account without them has no
// signing key.
type Salts struct {
	Encryption     []byte `json:"encryptionKeySalt"`
	KeyAgreement   []byte `json:"dhKeySalt"`
	Authentication []byte `json:"hmacKeySalt"`
	Signing        []byte `json:"signingKeySalt,omitempty"`
	KeyWrapping    []byte `json:"keyWrappingKeySalt,omitempty"`
}

func (s Salts) validate() error {
	for _, r := range []struct {
		name     string
		salt     []byte
		optional bool
	}{
		{"encryption", s.Encryption, false},
		{"key-agreement", s.KeyAgreement, false},
		{"authentication", s.Authentication, false},
		{"signing", s.Signing, true},
		{"key-wrapping", s.KeyWrapping, true},
	} {
		if r.optional && len(r.salt) == 0 {
			continue
		}
		if len(r.salt) != SaltSize {
			return errs.Newf(errs.CodeKeyMaterialInvalid, "%s salt must be %d bytes, got %d", r.name, SaltSize, len(r.salt))
		}
	}
	return nil
}

// KeyPair is an X25519 key pair.
type KeyPair struct {
	Private domain.X25519Private
	Public  domain.X25519Public
}

// SigningKeyPair is an Ed25519 key pair.
type SigningKeyPair struct {
	Private domain.Ed25519Private
	Public  domain.Ed25519Public
}

// KeySet holds every key derived for one connection. It is read-only once
// DeriveKeySet returns, except for AdoptSigningKey.
type KeySet struct {
	EncryptionKey     [32]byte
	KeyAgreement      KeyPair
	AuthenticationKey [32]byte
	KeyWrappingKey    *[32]byte
	Signing           *SigningKeyPair
}

// DeriveKeySet derives the key set for seed and salts. It is deterministic:
// equal inputs produce equal keys. Inputs are validated before any key is
// derived.
func DeriveKeySet(seed Seed, salts Salts) (*KeySet, error) {
	if seed.IsZero() {
		return nil, errs.New(errs.CodeKeyMaterialInvalid, "seed is empty")
	}
	if err := salts.validate(); err != nil {
		return nil, err
	}

	master := hkdf.Extract(sha256.New, seed[:], nil)
	defer crypto.Wipe(master)

	ks := &KeySet{}
	var err error
	if ks.EncryptionKey, err = expand(master, salts.Encryption, ContextEncryption); err != nil {
		return nil, err
	}
	if ks.AuthenticationKey, err = expand(master, salts.Authentication, ContextAuthentication); err != nil {
		return nil, err
	}
	scalar, err := expand(master, salts.KeyAgreement, ContextKeyAgreement)
	if err != nil {
		return nil, err
	}
	ks.KeyAgreement.Private, ks.KeyAgreement.Public, err = crypto.X25519FromScalar(scalar)
	crypto.Wipe(scalar[:])
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}
	if len(salts.KeyWrapping) > 0 {
		kw, err := expand(master, salts.KeyWrapping, ContextKeyWrapping)
		if err != nil {
			return nil, err
		}
		ks.KeyWrappingKey = &kw
	}
	if len(salts.Signing) > 0 {
		s, err := expand(master, salts.Signing, ContextSigning)
		if err != nil {
			return nil, err
		}
		priv, pub := crypto.Ed25519FromSeed(s)
		crypto.Wipe(s[:])
		ks.Signing = &SigningKeyPair{Private: priv, Public: pub}
	}
	return ks, nil
}

func expand(master, salt []byte, context string) ([32]byte, error) {
	var out [32]byte
	r := hkdf.New(sha256.New, master, salt, []byte(context))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, fmt.Errorf("hkdf %s: %w", context, err)
	}
	return out, nil
}

// HashName blinds a database name for the relay.
func (ks *KeySet) HashName(name string) domain.NameHash {
	return domain.NameHash(crypto.HashString(ks.AuthenticationKey[:], name))
}

// Fingerprint identifies the long-term key-agreement public key.
func (ks *KeySet) Fingerprint() domain.Fingerprint {
	return crypto.Fingerprint(ks.KeyAgreement.Public.Slice())
}

// Encrypt seals data under the encryption key with aad.
func (ks *KeySet) Encrypt(data, aad []byte) ([]byte, error) {
	return crypto.Seal(ks.EncryptionKey[:], data, aad)
}

// Decrypt opens data sealed by Encrypt.
func (ks *KeySet) Decrypt(sealed, aad []byte) ([]byte, error) {
	pt, err := crypto.Open(ks.EncryptionKey[:], sealed, aad)
	if err != nil {
		return nil, errs.Wrap(errs.CodeKeyNotValid, err, "encryption key")
	}
	return pt, nil
}

// WrapSigningKey seals a signing private key under the key-wrapping key so
// the relay can store it.
func (ks *KeySet) WrapSigningKey(priv domain.Ed25519Private) ([]byte, error) {
	if ks.KeyWrappingKey == nil {
		return nil, errs.New(errs.CodeKeyNotFound, "no key-wrapping key")
	}
	return crypto.Seal(ks.KeyWrappingKey[:], priv.Slice(), []byte(ContextSigning))
}

// AdoptSigningKey unwraps a relay-stored signing key and makes it the
// set's signing key, replacing any derived one.
func (ks *KeySet) AdoptSigningKey(blob []byte) error {
	if ks.KeyWrappingKey == nil {
		return errs.New(errs.CodeKeyNotFound, "no key-wrapping key")
	}
	raw, err := crypto.Open(ks.KeyWrappingKey[:], blob, []byte(ContextSigning))
	if err != nil {
		return errs.Wrap(errs.CodeKeyNotValid, err, "signing key")
	}
	defer crypto.Wipe(raw)
	if len(raw) != len(domain.Ed25519Private{}) {
		return errs.New(errs.CodeKeyMaterialInvalid, "signing key length")
	}
	var priv domain.Ed25519Private
	copy(priv[:], raw)
	ks.Signing = &SigningKeyPair{Private: priv, Public: crypto.PublicFromPrivate(priv)}
	return nil
}

// Wipe zeroes all secret material in the set.
func (ks *KeySet) Wipe() {
	if ks == nil {
		return
	}
	crypto.Wipe32(&ks.EncryptionKey)
	crypto.Wipe32(&ks.AuthenticationKey)
	crypto.Wipe(ks.KeyAgreement.Private[:])
	crypto.Wipe32(ks.KeyWrappingKey)
	if ks.Signing != nil {
		crypto.Wipe(ks.Signing.Private[:])
	}
}
