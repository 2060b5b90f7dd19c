// Package crypto exposes the primitives cipherdb builds its key hierarchy on.
//
// Contents
//
//   - Authenticated encryption with XChaCha20-Poly1305, nonce prefixed to the
//     ciphertext (Seal, Open)
//   - Keyed hashing for blinding identifiers (HMAC, HashString)
//   - X25519 key generation and Diffie–Hellman, plus a hashed shared key for
//     wrapping (GenerateX25519, X25519FromScalar, DH, SharedKey)
//   - Ed25519 signing and verification
//   - Memory-hard password hashing (Scrypt, Argon2ID)
//   - Short public-key fingerprints for human comparison (Fingerprint)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//
// # Notes
//
// Key types are the fixed-size arrays defined in internal/domain. Any
// authentication failure from Open is reported as ErrDecrypt without further
// detail, so callers cannot distinguish a wrong key from a tampered message.
package crypto
