package replica

import (
	"encoding/json"
	"fmt"

	"cipherdb/internal/domain"
	"cipherdb/internal/errs"
	"cipherdb/internal/keys"
)

// SealRecord encrypts rec for storage in a log entry. The item key is bound
// as additional data so a record cannot be moved to another item.
func SealRecord(key *keys.DatabaseKey, itemKey domain.ItemKey, rec domain.ItemRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return key.Encrypt(raw, []byte(itemKey))
}

// OpenRecord reverses SealRecord and checks that the record belongs to
// itemKey.
func OpenRecord(key *keys.DatabaseKey, itemKey domain.ItemKey, sealed []byte) (domain.ItemRecord, error) {
	var rec domain.ItemRecord
	raw, err := key.Decrypt(sealed, []byte(itemKey))
	if err != nil {
		return rec, errs.Wrap(errs.CodeKeyNotValid, err, "item record")
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, errs.Wrap(errs.CodeItemInvalid, err, "item record")
	}
	if rec.ID == "" || key.ItemKey(rec.ID) != itemKey {
		return rec, errs.New(errs.CodeItemInvalid, "item record does not match its key")
	}
	return rec, nil
}
