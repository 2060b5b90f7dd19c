package keys

import (
	"cipherdb/internal/crypto"
	"cipherdb/internal/errs"
)

// PasswordKey is derived from a user's password. EncryptionKey seals the
// seed backup; Token proves knowledge of the password to the account
// service without revealing EncryptionKey.
type PasswordKey struct {
	EncryptionKey [32]byte
	Token         []byte
}

const backupAAD = "cipherdb/seed-backup"

// DeriveFromPassword runs scrypt over password and salt. It is slow on
// purpose.
func DeriveFromPassword(password string, salt []byte) (*PasswordKey, error) {
	if password == "" {
		return nil, errs.ErrPasswordMissing
	}
	if len(salt) != SaltSize {
		return nil, errs.Newf(errs.CodeKeyMaterialInvalid, "password salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	out, err := crypto.Scrypt(password, salt, 64)
	if err != nil {
		return nil, errs.Wrap(errs.CodeKeyMaterialInvalid, err, "password key")
	}
	defer crypto.Wipe(out)
	pk := &PasswordKey{Token: append([]byte(nil), out[32:]...)}
	copy(pk.EncryptionKey[:], out[:32])
	return pk, nil
}

// BackupSeed seals seed under the password key.
func BackupSeed(pk *PasswordKey, seed Seed) ([]byte, error) {
	return crypto.Seal(pk.EncryptionKey[:], seed[:], []byte(backupAAD))
}

// RecoverSeed opens a backup made by BackupSeed. A wrong password shows up
// as UsernameOrPasswordMismatch.
func RecoverSeed(pk *PasswordKey, blob []byte) (Seed, error) {
	raw, err := crypto.Open(pk.EncryptionKey[:], blob, []byte(backupAAD))
	if err != nil {
		return Seed{}, errs.Wrap(errs.CodeUsernameOrPasswordMismatch, err, "seed backup")
	}
	defer crypto.Wipe(raw)
	return SeedFromBytes(raw)
}

// Wipe zeroes the key.
func (pk *PasswordKey) Wipe() {
	crypto.Wipe32(&pk.EncryptionKey)
	crypto.Wipe(pk.Token)
}
