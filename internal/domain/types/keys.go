package types

import (
	"encoding/base64"
	"fmt"
)

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is unset.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// MarshalText encodes the key as standard base64.
func (p X25519Public) MarshalText() ([]byte, error) { return marshalB64(p[:]) }

// UnmarshalText decodes a base64 key.
func (p *X25519Public) UnmarshalText(b []byte) error { return unmarshalB64(p[:], b, "x25519 public") }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// MarshalText encodes the key as standard base64. Only local persistence of
// ephemeral seed-request keys uses this.
func (k X25519Private) MarshalText() ([]byte, error) { return marshalB64(k[:]) }

// UnmarshalText decodes a base64 key.
func (k *X25519Private) UnmarshalText(b []byte) error {
	return unmarshalB64(k[:], b, "x25519 private")
}

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is unset.
func (p Ed25519Public) IsZero() bool { return p == Ed25519Public{} }

// MarshalText encodes the key as standard base64.
func (p Ed25519Public) MarshalText() ([]byte, error) { return marshalB64(p[:]) }

// UnmarshalText decodes a base64 key.
func (p *Ed25519Public) UnmarshalText(b []byte) error {
	return unmarshalB64(p[:], b, "ed25519 public")
}

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

func marshalB64(b []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out, nil
}

func unmarshalB64(dst, src []byte, what string) error {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(src)))
	n, err := base64.StdEncoding.Decode(raw, src)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n != len(dst) {
		return fmt.Errorf("%s: want %d bytes, got %d", what, len(dst), n)
	}
	copy(dst, raw[:n])
	return nil
}
