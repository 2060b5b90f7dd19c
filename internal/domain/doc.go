// Package domain defines the data model and contracts shared across cipherdb.
//
// Plain types live in the types subpackage and contracts in interfaces; this
// package re-exports both as aliases so callers import a single path.
//
// # Model
//
//   - Transaction: one sequence-numbered log entry broadcast by the relay.
//     Item payloads travel sealed under the database key inside Record.
//   - StoredItem and Snapshot: a replica's decrypted view of a database and
//     the compacted image used for bundles.
//   - SessionRecord and SeedRequest: device-local state kept through a
//     LocalStore according to the RememberMe mode.
//   - DatabaseGrant: a database key wrapped for another user.
//
// Identifiers that reach the relay are always blinded (NameHash, ItemKey).
package domain
