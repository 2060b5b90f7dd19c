package types

// DatabaseGrant is an offer of access to another user's database as the
// relay stores it. WrappedKey is the database key sealed under the
// ECDH-derived key of sender and recipient.
type DatabaseGrant struct {
	DatabaseID         DatabaseID    `json:"databaseId"`
	NameHash           NameHash      `json:"dbNameHash"`
	Sender             Username      `json:"senderUsername"`
	SenderPublicKey    X25519Public  `json:"senderPublicKey"`
	SenderVerifyingKey Ed25519Public `json:"senderVerifyingKey,omitempty"`
	EncryptedName      []byte        `json:"encryptedDbName"`
	WrappedKey         []byte        `json:"wrappedDbKey"`
	ReadOnly           bool          `json:"readOnly"`
	Signature          []byte        `json:"signature,omitempty"`
}

// GrantPrompt is what a human is shown before a grant is sent or accepted.
type GrantPrompt struct {
	Database    string
	Peer        Username
	Fingerprint Fingerprint
	ReadOnly    bool
}
