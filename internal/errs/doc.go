// Package errs defines the closed set of failures surfaced by cipherdb.
//
// Every public operation returns either nil or an error that unwraps to an
// *Error. An *Error carries a Code (what happened) and derives a Kind (how a
// caller should react):
//
//   - Validation    malformed caller input, rejected before any network I/O
//   - Conflict      concurrent-write races (retry or merge)
//   - NotFound      missing item or database
//   - Auth          session or key material problems
//   - Availability  relay busy, down, or slow (retry later)
//   - Protocol      a matched response carried an unexpected status
//   - Closed        the connection was closed deliberately
//
// Matching is by code, so errors.Is(err, errs.ErrItemUpdateConflict) holds
// for any wrapped *Error with that code regardless of message or payload.
package errs
