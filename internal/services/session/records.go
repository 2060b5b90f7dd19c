package session

import (
	"encoding/json"
	"fmt"

	"cipherdb/internal/domain"
	"cipherdb/internal/keys"
)

func (s *Service) sessionKey() string {
	return fmt.Sprintf("cipherdb.%s.session", s.cfg.Relay.AppID)
}

func (s *Service) seedKey(user domain.Username) string {
	return fmt.Sprintf("cipherdb.%s.%s.seed", s.cfg.Relay.AppID, user)
}

func (s *Service) seedRequestKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return ""
	}
	return fmt.Sprintf("cipherdb.%s.%s.seedRequest", s.cfg.Relay.AppID, s.record.Username)
}

func (s *Service) rememberedSeed(user domain.Username) (keys.Seed, bool, error) {
	s.mu.Lock()
	st := s.store
	s.mu.Unlock()
	if st == nil {
		return keys.Seed{}, false, nil
	}
	b, ok, err := st.Get(s.seedKey(user))
	if err != nil || !ok {
		return keys.Seed{}, false, err
	}
	seed, err := keys.ParseSeed(string(b))
	if err != nil {
		s.log.Warn("ignoring unreadable remembered seed", "user", user, "err", err)
		return keys.Seed{}, false, nil
	}
	return seed, true, nil
}

// persist writes the session record and the seed.
func (s *Service) persist() error {
	s.mu.Lock()
	st, rec, seed := s.store, s.record, s.seed
	s.mu.Unlock()
	if st == nil || rec == nil {
		return nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	if err := st.Set(s.sessionKey(), b); err != nil {
		return err
	}
	if seed.IsZero() {
		return nil
	}
	return st.Set(s.seedKey(rec.Username), []byte(seed.String()))
}

// loadSeedRequest returns the pending seed request kept from an earlier
// run, if any.
func (s *Service) loadSeedRequest() (*domain.SeedRequest, bool) {
	s.mu.Lock()
	st := s.store
	s.mu.Unlock()
	key := s.seedRequestKey()
	if st == nil || key == "" {
		return nil, false
	}
	b, ok, err := st.Get(key)
	if err != nil || !ok {
		return nil, false
	}
	var req domain.SeedRequest
	if err := json.Unmarshal(b, &req); err != nil {
		s.log.Warn("ignoring unreadable seed request", "err", err)
		return nil, false
	}
	return &req, true
}

func (s *Service) saveSeedRequest(req *domain.SeedRequest) error {
	s.mu.Lock()
	st := s.store
	s.mu.Unlock()
	key := s.seedRequestKey()
	if st == nil || key == "" {
		return nil
	}
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode seed request: %w", err)
	}
	return st.Set(key, b)
}

func (s *Service) forget(names ...string) {
	s.mu.Lock()
	st := s.store
	s.mu.Unlock()
	if st == nil {
		return
	}
	for _, k := range names {
		if k == "" {
			continue
		}
		if err := st.Remove(k); err != nil {
			s.log.Warn("remove local record", "key", k, "err", err)
		}
	}
}
