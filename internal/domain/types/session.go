package types

// SessionRecord is what a signed-in device keeps in order to reconnect.
// It never contains key material; the seed is stored under its own key.
type SessionRecord struct {
	RelayURL   string     `json:"relay_url"`
	AppID      string     `json:"app_id"`
	Username   Username   `json:"username"`
	UserID     string     `json:"user_id,omitempty"`
	SessionID  string     `json:"session_id"`
	RememberMe RememberMe `json:"remember_me"`
	CreatedUTC int64      `json:"created_utc"`
}

// SeedRequest is the ephemeral key pair a device without the seed uses to
// ask its other devices for it.
type SeedRequest struct {
	Private    X25519Private `json:"private"`
	Public     X25519Public  `json:"public"`
	CreatedUTC int64         `json:"created_utc"`
}
