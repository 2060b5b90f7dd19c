package crypto

import (
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

// Scrypt work factor. N=2^15 keeps a derivation near 100ms on current
// desktop hardware while remaining usable on slower clients.
const (
	ScryptN = 1 << 15
	ScryptR = 8
	ScryptP = 1
)

// Argon2id parameters for local at-rest protection.
const (
	Argon2Time    = 3
	Argon2Memory  = 64 * 1024
	Argon2Threads = 1
)

// ErrEmptyPassword is returned when a password-derived key is requested for
// an empty password.
var ErrEmptyPassword = errors.New("crypto: empty password")

// Scrypt derives n bytes from password and salt.
func Scrypt(password string, salt []byte, n int) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	return scrypt.Key([]byte(password), salt, ScryptN, ScryptR, ScryptP, n)
}

// Argon2ID derives a KeySize key-encryption key from passphrase and salt.
func Argon2ID(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassword
	}
	return argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Threads, KeySize), nil
}
