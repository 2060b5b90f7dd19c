// Package keyexchange implements the two ECDH-based transfers cipherdb
// performs through the relay.
//
// # Device seed-linking
//
// A device that lacks the seed creates an ephemeral X25519 key pair
// (NewSeedRequest) and asks the relay to forward its public key to the
// account's other sessions. On a device that holds the seed, a human
// compares the request's fingerprint with the one shown on the new device
// and confirms. The confirming device then seals the seed under
// SHA-256(DH(long-term private, requester public)) with SealSeed. The
// requester opens it with OpenSeed using its ephemeral private key and the
// sender's long-term public key.
//
// # Database sharing
//
// The same derivation wraps a database key for another user
// (WrapDatabaseKey, UnwrapDatabaseKey). When the grantor has a signing key
// the grant is signed over its identifying fields (SignGrant, VerifyGrant)
// so a recipient can tell the grant came from the claimed user.
//
// # Errors
//
// Every failure to open a sealed seed or database key is reported as
// errs.ErrKeyNotValid. A seed that opens but has the wrong length is
// rejected the same way; nothing ever proceeds with partial key material.
package keyexchange
