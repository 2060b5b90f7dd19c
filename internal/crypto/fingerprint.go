package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"cipherdb/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) domain.Fingerprint {
	sum := sha256.Sum256(pub)
	return domain.Fingerprint(hex.EncodeToString(sum[:10]))
}

// DisplayFingerprint groups a fingerprint in blocks of four for reading
// aloud, e.g. "3f2a 91c0 ...".
func DisplayFingerprint(fp domain.Fingerprint) string {
	s := string(fp)
	var b strings.Builder
	for i := 0; i < len(s); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i:min(i+4, len(s))])
	}
	return b.String()
}
