package types

// Username identifies an account on the relay.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

// Fingerprint is a short, human-comparable digest of a public key.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// DatabaseID is the relay-assigned identifier of a database.
type DatabaseID string

// String returns the string form of the identifier.
func (id DatabaseID) String() string { return string(id) }

// NameHash is a database name blinded with the authentication key. The relay
// only ever sees this form.
type NameHash string

// String returns the string form of the hash.
func (h NameHash) String() string { return string(h) }

// ItemKey is an item identifier blinded with the database key.
type ItemKey string

// String returns the string form of the key.
func (k ItemKey) String() string { return string(k) }
