package keys

import (
	"crypto/rand"
	"fmt"

	"cipherdb/internal/crypto"
	"cipherdb/internal/errs"
)

// SeedSize is the length of a seed in bytes.
const SeedSize = 32

// Seed is the root secret of an account.
type Seed [SeedSize]byte

// NewSeed returns a fresh random seed.
func NewSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return Seed{}, fmt.Errorf("seed: %w", err)
	}
	return s, nil
}

// ParseSeed decodes the base64 string form produced by String. Anything that
// does not decode to exactly SeedSize bytes is ErrKeyMaterialInvalid.
func ParseSeed(s string) (Seed, error) {
	raw, err := crypto.UnB64(s)
	if err != nil {
		return Seed{}, errs.Wrap(errs.CodeKeyMaterialInvalid, err, "seed is not base64")
	}
	defer crypto.Wipe(raw)
	return SeedFromBytes(raw)
}

// SeedFromBytes copies b into a Seed after checking its length.
func SeedFromBytes(b []byte) (Seed, error) {
	if len(b) != SeedSize {
		return Seed{}, errs.Newf(errs.CodeKeyMaterialInvalid, "seed must be %d bytes, got %d", SeedSize, len(b))
	}
	var s Seed
	copy(s[:], b)
	return s, nil
}

// String returns the seed in standard base64, the form users back up.
func (s Seed) String() string { return crypto.B64(s[:]) }

// IsZero reports whether s is unset.
func (s Seed) IsZero() bool { return s == Seed{} }

// Wipe zeroes the seed in place.
func (s *Seed) Wipe() { crypto.Wipe(s[:]) }
