package types

// User is the public view of an account that other users can look up.
type User struct {
	Username     Username      `json:"username"`
	UserID       string        `json:"userId,omitempty"`
	PublicKey    X25519Public  `json:"publicKey"`
	VerifyingKey Ed25519Public `json:"verifyingKey,omitempty"`
}

// RememberMe selects how long a device keeps its session and seed.
type RememberMe string

const (
	// RememberLocal persists across restarts.
	RememberLocal RememberMe = "local"
	// RememberSession keeps state only for the running process.
	RememberSession RememberMe = "session"
	// RememberNone never persists anything.
	RememberNone RememberMe = "none"
)

// Valid reports whether r is one of the known modes.
func (r RememberMe) Valid() bool {
	switch r {
	case RememberLocal, RememberSession, RememberNone:
		return true
	}
	return false
}
