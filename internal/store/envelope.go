package store

import (
	"encoding/json"
	"fmt"

	"cipherdb/internal/crypto"
	"cipherdb/internal/errs"
)

// The current supported version of the sealed value format.
const envelopeVersion = 1

// envelope is the stored form of a value sealed under the passphrase key.
type envelope struct {
	V      int    `json:"v"`
	Cipher []byte `json:"cipher"`
}

// sealer protects values at rest. A nil sealer stores values as given.
type sealer struct {
	kek []byte
}

// newSealer derives the key-encryption key for passphrase and salt. An
// empty passphrase disables sealing.
func newSealer(passphrase string, salt []byte) (*sealer, error) {
	if passphrase == "" {
		return nil, nil
	}
	kek, err := crypto.Argon2ID(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return &sealer{kek: kek}, nil
}

func (s *sealer) seal(key string, raw []byte) ([]byte, error) {
	if s == nil {
		return raw, nil
	}
	ct, err := crypto.Seal(s.kek, raw, []byte(key))
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{V: envelopeVersion, Cipher: ct})
}

func (s *sealer) open(key string, b []byte) ([]byte, error) {
	if s == nil {
		return b, nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errs.Wrap(errs.CodeKeyNotValid, err, "stored value is not sealed")
	}
	if env.V > envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.V)
	}
	pt, err := crypto.Open(s.kek, env.Cipher, []byte(key))
	if err != nil {
		return nil, errs.New(errs.CodeKeyNotValid, "wrong passphrase or corrupted value")
	}
	return pt, nil
}

func (s *sealer) wipe() {
	if s != nil {
		crypto.Wipe(s.kek)
	}
}
