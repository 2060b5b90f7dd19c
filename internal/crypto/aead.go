package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the length of every symmetric key.
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the length of the nonce prefixed to each ciphertext.
	NonceSize = chacha20poly1305.NonceSizeX
	// Overhead is the number of bytes Seal adds to a plaintext.
	Overhead = NonceSize + chacha20poly1305.Overhead
)

var (
	// ErrDecrypt is returned by Open for any authentication failure.
	ErrDecrypt = errors.New("crypto: message authentication failed")
	// ErrKeySize is returned for keys that are not KeySize bytes.
	ErrKeySize = errors.New("crypto: invalid key size")
)

// Seal encrypts plaintext under key and binds aad. The result is
// nonce || ciphertext || tag.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha: %w", err)
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(out, out[:NonceSize], plaintext, aad), nil
}

// Open reverses Seal.
func Open(key, sealed, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	if len(sealed) < Overhead {
		return nil, ErrDecrypt
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha: %w", err)
	}
	pt, err := aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}
