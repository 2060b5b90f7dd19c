// Package replica keeps the client-side copy of one database.
//
// A Replica holds the decrypted items, an index ordered by
// (sequence number, operation index) and the sequence number of the last
// applied log entry. Log entries are applied strictly one at a time and
// only when their sequence number is exactly one past the last applied
// one; anything else is dropped with a warning. A gap additionally marks
// the replica stale so the owner can resubscribe and let the relay replay
// what was missed.
//
// Local writes are tracked as Unverified transactions. Each one records the
// last applied sequence number at submission; once the relay reports the
// sequence number it assigned, the write settles with the outcome of
// applying that entry, whichever of the two arrives first. A write always
// settles: with its outcome, on timeout, or when the replica is closed.
//
// Queue serialises work for one database so that log slices from
// back-to-back messages never interleave.
package replica
