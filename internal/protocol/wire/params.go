package wire

import "cipherdb/internal/domain"

// NewDatabase carries what the relay stores when OpenDatabase creates a
// database: the key wrapped for the owner and the name sealed for them.
type NewDatabase struct {
	EncryptedDbKey  []byte `json:"encryptedDbKey"`
	EncryptedDbName []byte `json:"encryptedDbName"`
}

// OpenDatabaseParams subscribes to a database. ReopenAtSeqNo asks the relay
// to replay only entries after that sequence number.
type OpenDatabaseParams struct {
	DbNameHash    domain.NameHash `json:"dbNameHash"`
	NewDatabase   *NewDatabase    `json:"newDatabaseParams,omitempty"`
	ReopenAtSeqNo uint64          `json:"reopenAtSeqNo,omitempty"`
}

// ItemParams is the body of Insert, Update and Delete.
type ItemParams struct {
	DbNameHash domain.NameHash `json:"dbNameHash"`
	ItemKey    domain.ItemKey  `json:"itemKey"`
	Record     []byte          `json:"encryptedItem"`
}

// BatchParams is the body of BatchTransaction.
type BatchParams struct {
	DbNameHash domain.NameHash    `json:"dbNameHash"`
	Operations []domain.Operation `json:"operations"`
}

// WriteResult is the relay's answer to a write: the sequence number it
// assigned to the resulting log entry.
type WriteResult struct {
	SeqNo uint64 `json:"seqNo"`
}

// Bundle is a compacted, chunked and sealed database snapshot.
type Bundle struct {
	SeqNo    uint64           `json:"seqNo"`
	Chunks   [][]byte         `json:"chunks"`
	ItemKeys []domain.ItemKey `json:"itemKeys,omitempty"`
}

// BundleParams uploads a bundle.
type BundleParams struct {
	DbID       domain.DatabaseID `json:"dbId"`
	DbNameHash domain.NameHash   `json:"dbNameHash"`
	Bundle     Bundle            `json:"bundle"`
}

// ValidateKeyParams returns the decrypted connection challenge.
type ValidateKeyParams struct {
	ValidationMessage []byte `json:"validationMessage"`
}

// RequestSeedParams announces a seed request to the account's devices.
type RequestSeedParams struct {
	RequesterPublicKey domain.X25519Public `json:"requesterPublicKey"`
}

// SendSeedParams answers a seed request.
type SendSeedParams struct {
	RequesterPublicKey domain.X25519Public `json:"requesterPublicKey"`
	SenderPublicKey    domain.X25519Public `json:"senderPublicKey"`
	EncryptedSeed      []byte              `json:"encryptedSeed"`
}

// SeedRequests is the answer to GetRequestsForSeed.
type SeedRequests struct {
	Requests []RequestSeedParams `json:"seedRequests"`
}

// GetPublicKeyParams looks up another user.
type GetPublicKeyParams struct {
	Username domain.Username `json:"username"`
}

// GrantParams offers a database to another user.
type GrantParams struct {
	Username   domain.Username      `json:"username"`
	DbNameHash domain.NameHash      `json:"dbNameHash"`
	Grant      domain.DatabaseGrant `json:"grant"`
}

// Grants is the answer to GetDatabaseAccessGrants.
type Grants struct {
	Grants []domain.DatabaseGrant `json:"grants"`
}

// AcceptParams accepts a grant. The key and name are re-sealed for the
// recipient under its own keys.
type AcceptParams struct {
	DbID            domain.DatabaseID `json:"dbId"`
	DbNameHash      domain.NameHash   `json:"dbNameHash"`
	EncryptedDbKey  []byte            `json:"encryptedDbKey"`
	EncryptedDbName []byte            `json:"encryptedDbName"`
}

// UpdateUserParams changes account attributes and, optionally, the
// password-protected seed backup.
type UpdateUserParams struct {
	Username       domain.Username `json:"username,omitempty"`
	Email          string          `json:"email,omitempty"`
	PasswordToken  []byte          `json:"passwordToken,omitempty"`
	PasswordSalt   []byte          `json:"passwordSalt,omitempty"`
	SeedBackup     []byte          `json:"passwordBasedBackup,omitempty"`
	WrappedSignKey []byte          `json:"wrappedSigningKey,omitempty"`
}
