package keyexchange

import (
	"time"

	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
)

const seedAAD = "cipherdb/seed-transfer"

// NewSeedRequest generates the ephemeral key pair for a seed request.
func NewSeedRequest() (domain.SeedRequest, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.SeedRequest{}, err
	}
	return domain.SeedRequest{Private: priv, Public: pub, CreatedUTC: time.Now().UTC().Unix()}, nil
}

// RequestFingerprint is what both devices display for a request.
func RequestFingerprint(pub domain.X25519Public) domain.Fingerprint {
	return crypto.Fingerprint(pub.Slice())
}

// SealSeed seals seed for the requester. senderPriv is the confirming
// device's long-term key-agreement private key.
func SealSeed(senderPriv domain.X25519Private, requesterPub domain.X25519Public, seed keys.Seed) ([]byte, error) {
	k, err := crypto.SharedKey(senderPriv, requesterPub)
	if err != nil {
		return nil, errs.Wrap(errs.CodeKeyNotValid, err, "requester key")
	}
	defer crypto.Wipe(k[:])
	return crypto.Seal(k[:], seed[:], []byte(seedAAD))
}

// OpenSeed reverses SealSeed on the requesting device.
func OpenSeed(requesterPriv domain.X25519Private, senderPub domain.X25519Public, sealed []byte) (keys.Seed, error) {
	k, err := crypto.SharedKey(requesterPriv, senderPub)
	if err != nil {
		return keys.Seed{}, errs.Wrap(errs.CodeKeyNotValid, err, "sender key")
	}
	defer crypto.Wipe(k[:])
	raw, err := crypto.Open(k[:], sealed, []byte(seedAAD))
	if err != nil {
		return keys.Seed{}, errs.Wrap(errs.CodeKeyNotValid, err, "seed")
	}
	defer crypto.Wipe(raw)
	seed, err := keys.SeedFromBytes(raw)
	if err != nil {
		return keys.Seed{}, errs.Wrap(errs.CodeKeyNotValid, err, "seed")
	}
	return seed, nil
}
