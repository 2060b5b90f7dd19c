package types

import "encoding/json"

// WriteOp is one caller-supplied mutation of a batch write.
type WriteOp struct {
	Command Command         `json:"command"`
	ItemID  string          `json:"itemId"`
	Item    json.RawMessage `json:"item,omitempty"`
}

// SignInParams carries what the account collaborator produced at sign-in.
// Seed is optional; without it the device asks its other devices.
type SignInParams struct {
	Username   Username
	UserID     string
	SessionID  string
	Seed       string
	RememberMe RememberMe

	// Password and backup material, when the account keeps a
	// password-protected copy of the seed.
	Password   string
	BackupSalt []byte
	BackupBlob []byte
}

// UserUpdate changes account attributes. A non-empty Password rotates the
// password-protected seed backup as well.
type UserUpdate struct {
	Username Username `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Password string   `json:"-"`
}
