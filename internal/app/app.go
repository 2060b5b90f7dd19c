package app

import (
	"context"

	"cipherdb/internal/domain"
	"cipherdb/internal/services/database"
)

// App is a signed-in client built from a Wire.
type App struct {
	*Wire
}

// New returns an App over w.
func New(w *Wire) *App {
	return &App{Wire: w}
}

// Credentials are what the account service handed out at sign-in. Empty
// credentials resume the session remembered on this device.
type Credentials struct {
	Username  domain.Username
	SessionID string
	Seed      string
}

// Start signs in with creds or resumes the remembered session.
func (a *App) Start(ctx context.Context, creds Credentials) error {
	if creds.Username == "" && creds.SessionID == "" {
		return a.Session.Resume(ctx)
	}
	return a.Session.SignIn(ctx, domain.SignInParams{
		Username:   creds.Username,
		SessionID:  creds.SessionID,
		Seed:       creds.Seed,
		RememberMe: a.Config.Remember,
	})
}

// Databases returns the database service of the signed-in device.
func (a *App) Databases() (*database.Service, error) {
	return a.Session.Databases()
}

// Close disconnects without signing out.
func (a *App) Close() error {
	return a.Session.Close()
}
