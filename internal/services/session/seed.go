package session

import (
	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
	"cipherdb/internal/protocol/keyexchange"
	"cipherdb/internal/protocol/wire"
)

// ProvideSeed supplies the seed by hand while SignIn waits for it.
func (s *Service) ProvideSeed(seed string) error {
	parsed, err := keys.ParseSeed(seed)
	if err != nil {
		return err
	}
	return s.adopt(parsed)
}

// adopt hands seed to a connection awaiting keys. The connection checks it
// against the relay's challenge, so a wrong seed fails validation instead
// of being used.
func (s *Service) adopt(seed keys.Seed) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return errs.ErrUserNotSignedIn
	}
	s.seed = seed
	s.seedReq = nil
	s.mu.Unlock()

	conn.ProvideSeed(seed)
	s.forget(s.seedRequestKey())
	return nil
}

// requestSeed asks the account's other devices for the seed. A request
// kept from an earlier run is reused so a confirmation given meanwhile
// still reaches this device.
func (s *Service) requestSeed() {
	s.mu.Lock()
	req := s.seedReq
	s.mu.Unlock()
	if req == nil {
		if kept, ok := s.loadSeedRequest(); ok {
			req = kept
		} else {
			fresh, err := keyexchange.NewSeedRequest()
			if err != nil {
				s.log.Error("create seed request", "err", err)
				return
			}
			req = &fresh
			if err := s.saveSeedRequest(req); err != nil {
				s.log.Warn("persist seed request", "err", err)
			}
		}
		s.mu.Lock()
		s.seedReq = req
		if s.asked != nil {
			// Never offer our own seed request to ourselves.
			s.asked[req.Public] = struct{}{}
		}
		s.mu.Unlock()
	}

	fp := keyexchange.RequestFingerprint(req.Public)
	s.log.Info("waiting for the seed from another device", "fingerprint", fp)
	if s.cfg.OnAwaitingSeed != nil {
		s.cfg.OnAwaitingSeed(fp)
	}
	if err := s.request(wire.ActionRequestSeed, wire.RequestSeedParams{RequesterPublicKey: req.Public}, nil); err != nil {
		s.log.Warn("seed request not sent", "err", err)
	}
}

// receiveSeed opens a seed sent in answer to our request. A seed that
// does not open is dropped and the device keeps waiting.
func (s *Service) receiveSeed(m *wire.ReceiveSeed) {
	s.mu.Lock()
	req := s.seedReq
	s.mu.Unlock()
	if req == nil {
		s.log.Warn("seed received without a pending request")
		return
	}
	seed, err := keyexchange.OpenSeed(req.Private, m.SenderPublicKey, m.EncryptedSeed)
	if err != nil {
		s.log.Warn("received seed does not open", "err", err)
		return
	}
	if err := s.adopt(seed); err != nil {
		s.log.Warn("adopt received seed", "err", err)
	}
}

// answerSeedRequest sends the seed to another device of the account once
// a human confirms the request's fingerprint. Each requester is asked
// about at most once per sign-in.
func (s *Service) answerSeedRequest(pub domain.X25519Public) {
	s.mu.Lock()
	if s.asked == nil {
		s.mu.Unlock()
		return
	}
	if _, dup := s.asked[pub]; dup {
		s.mu.Unlock()
		return
	}
	s.asked[pub] = struct{}{}
	seed, conn, ctx := s.seed, s.conn, s.ctx
	s.mu.Unlock()
	if conn == nil || seed.IsZero() {
		return
	}
	ks := conn.KeySet()
	if ks == nil {
		return
	}

	fp := keyexchange.RequestFingerprint(pub)
	ok, err := s.confirm.ConfirmSeedRequest(ctx, fp)
	if err != nil {
		s.log.Warn("seed request confirmation failed", "fingerprint", fp, "err", err)
		return
	}
	if !ok {
		s.log.Info("seed request declined", "fingerprint", fp)
		return
	}
	sealed, err := keyexchange.SealSeed(ks.KeyAgreement.Private, pub, seed)
	if err != nil {
		s.log.Error("seal seed", "err", err)
		return
	}
	err = s.request(wire.ActionSendSeed, wire.SendSeedParams{
		RequesterPublicKey: pub,
		SenderPublicKey:    ks.KeyAgreement.Public,
		EncryptedSeed:      sealed,
	}, nil)
	if err != nil {
		s.log.Warn("send seed", "fingerprint", fp, "err", err)
		return
	}
	s.log.Info("seed sent", "fingerprint", fp)
}

// fetchSeedRequests picks up requests made while this device was offline.
func (s *Service) fetchSeedRequests() {
	var res wire.SeedRequests
	if err := s.request(wire.ActionGetRequestsForSeed, nil, &res); err != nil {
		s.log.Debug("fetch seed requests", "err", err)
		return
	}
	for _, r := range res.Requests {
		s.answerSeedRequest(r.RequesterPublicKey)
	}
}
