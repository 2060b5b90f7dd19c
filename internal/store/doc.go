// Package store provides the device-local key/value persistence behind
// domain.LocalStore.
//
// Three backends exist:
//   - MemoryStore keeps values for the life of the process.
//   - FileStore writes one file per key under a directory, replacing files
//     atomically through a temp file and rename.
//   - BoltStore keeps every key in a single bbolt bucket.
//
// The durable backends can seal values at rest under a passphrase. The key
// is derived once per store with argon2id from a salt kept next to the data,
// and every value is bound to its key name.
//
// Open picks a backend from the remember-me mode.
package store
