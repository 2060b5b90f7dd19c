package session

import (
	"context"

	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
	"cipherdb/internal/protocol/wire"
)

// UpdateUser changes account attributes. A new password also replaces the
// password-protected seed backup, so the old password can no longer
// recover the seed.
func (s *Service) UpdateUser(ctx context.Context, u domain.UserUpdate) error {
	conn, err := s.active()
	if err != nil {
		return err
	}
	if u.Username == "" && u.Email == "" && u.Password == "" {
		return errs.New(errs.CodeParamsInvalid, "nothing to update")
	}
	p := wire.UpdateUserParams{Username: u.Username, Email: u.Email}
	if u.Password != "" {
		if err := s.sealBackup(u.Password, &p); err != nil {
			return err
		}
	}
	if err := conn.Request(ctx, wire.ActionUpdateUser, p, nil); err != nil {
		return err
	}
	if u.Username != "" {
		s.rename(u.Username)
	}
	return nil
}

// sealBackup fills p with a fresh password key token and the seed sealed
// under that key. With a key-wrapping key the signing key is re-wrapped
// too so the relay can hand it to devices that recover from the backup.
func (s *Service) sealBackup(password string, p *wire.UpdateUserParams) error {
	s.mu.Lock()
	seed, conn := s.seed, s.conn
	s.mu.Unlock()
	if seed.IsZero() || conn == nil {
		return errs.ErrUserNotSignedIn
	}
	salt, err := crypto.RandomBytes(keys.SaltSize)
	if err != nil {
		return err
	}
	pk, err := keys.DeriveFromPassword(password, salt)
	if err != nil {
		return err
	}
	defer pk.Wipe()
	blob, err := keys.BackupSeed(pk, seed)
	if err != nil {
		return err
	}
	p.PasswordToken = append([]byte(nil), pk.Token...)
	p.PasswordSalt = salt
	p.SeedBackup = blob

	if ks := conn.KeySet(); ks != nil && ks.Signing != nil && ks.KeyWrappingKey != nil {
		wrapped, err := ks.WrapSigningKey(ks.Signing.Private)
		if err != nil {
			return err
		}
		p.WrappedSignKey = wrapped
	}
	return nil
}

// rename moves the local records to the new username.
func (s *Service) rename(to domain.Username) {
	s.mu.Lock()
	if s.record == nil {
		s.mu.Unlock()
		return
	}
	from := s.record.Username
	s.record.Username = to
	s.mu.Unlock()

	s.forget(s.seedKey(from))
	if err := s.persist(); err != nil {
		s.log.Warn("persist renamed session", "err", err)
	}
}

// BackupSeed stores a password-protected copy of the seed with the relay.
func (s *Service) BackupSeed(ctx context.Context, password string) error {
	if password == "" {
		return errs.ErrPasswordMissing
	}
	return s.UpdateUser(ctx, domain.UserUpdate{Password: password})
}

// RecoverSeed opens a password backup and uses the seed for the pending
// sign-in.
func (s *Service) RecoverSeed(password string, salt, blob []byte) error {
	pk, err := keys.DeriveFromPassword(password, salt)
	if err != nil {
		return err
	}
	defer pk.Wipe()
	seed, err := keys.RecoverSeed(pk, blob)
	if err != nil {
		return err
	}
	return s.adopt(seed)
}

// DeleteUser deletes the account and everything this device remembers
// about it.
func (s *Service) DeleteUser(ctx context.Context) error {
	conn, err := s.active()
	if err != nil {
		return err
	}
	if err := conn.Request(ctx, wire.ActionDeleteUser, nil, nil); err != nil {
		return err
	}
	s.mu.Lock()
	var user domain.Username
	if s.record != nil {
		user = s.record.Username
	}
	s.mu.Unlock()
	s.forget(s.sessionKey(), s.seedKey(user), s.seedRequestKey())
	s.reset()
	s.log.Info("account deleted", "user", user)
	return nil
}

// Record returns the session record of the signed-in device.
func (s *Service) Record() (domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil || s.conn == nil {
		return domain.SessionRecord{}, errs.ErrUserNotSignedIn
	}
	return *s.record, nil
}
