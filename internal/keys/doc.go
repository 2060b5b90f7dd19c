// Package keys turns a user's seed into the typed key hierarchy cipherdb
// works with.
//
// The 32-byte seed is extracted into a master key with HKDF-SHA256. Each
// purpose key is then expanded from the master key with its own salt (sent
// by the relay, not secret) and its own context label, so no two purposes
// can share key material:
//
//	cipherdb/encryption      wraps database keys and the signing key blob
//	cipherdb/key-agreement   long-term X25519 key pair
//	cipherdb/authentication  blinds database names before they reach the relay
//	cipherdb/signing         Ed25519 key pair for signed database grants
//	cipherdb/key-wrapping    wraps a relay-stored signing key
//
// All inputs are length-checked before anything is derived. The master key
// is wiped once the set is built and nothing here is ever persisted.
//
// Password-based backup uses scrypt to derive a PasswordKey that seals the
// seed independently of the device, together with a token the account
// service can store to verify the password without learning the key.
//
// Database keys (DatabaseKey) are random per database and expanded into an
// encryption key and an item-identifier key.
package keys
