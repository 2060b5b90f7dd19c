package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"cipherdb/internal/domain"
)

// GenerateX25519 returns a fresh Curve25519 key pair.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	var scalar [32]byte
	if _, err = rand.Read(scalar[:]); err != nil {
		return priv, pub, err
	}
	defer Wipe(scalar[:])
	return X25519FromScalar(scalar)
}

// X25519FromScalar builds a key pair from 32 bytes of key material, clamping
// it per RFC 7748. Derived key-agreement keys come through here.
func X25519FromScalar(scalar [32]byte) (priv domain.X25519Private, pub domain.X25519Public, err error) {
	priv = domain.X25519Private(scalar)
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return domain.X25519Private{}, pub, err
	}
	copy(pub[:], pb)
	return priv, pub, nil
}

// DH computes X25519 Diffie–Hellman. Low-order peer keys are rejected.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, fmt.Errorf("x25519: %w", err)
	}
	copy(out[:], secret)
	Wipe(secret)
	return out, nil
}

// SharedKey is SHA-256 of the DH output, usable directly as a Seal key.
func SharedKey(priv domain.X25519Private, pub domain.X25519Public) ([32]byte, error) {
	dh, err := DH(priv, pub)
	if err != nil {
		return [32]byte{}, err
	}
	defer Wipe(dh[:])
	return sha256.Sum256(dh[:]), nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
