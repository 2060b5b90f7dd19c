package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"cipherdb/internal/app"
	"cipherdb/internal/crypto"
	"cipherdb/internal/domain"
	"cipherdb/internal/store"
)

var (
	configPath string
	cfg        app.Config
	appCtx     *app.App

	flags struct {
		home       string
		relayURL   string
		appID      string
		remember   string
		backend    string
		passphrase string
		logLevel   string

		username  string
		sessionID string
		seed      string
	}
)

// Execute runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:          "cipherdb",
		Short:        "End-to-end encrypted database client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx != nil {
				return appCtx.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", defaultConfigPath(), "config file")
	pf.StringVar(&flags.home, "home", "", "state dir (default ~/.cipherdb)")
	pf.StringVar(&flags.relayURL, "relay", "", "relay websocket URL")
	pf.StringVar(&flags.appID, "app", "", "app id")
	pf.StringVar(&flags.remember, "remember", "", "keep the session: local, session or none")
	pf.StringVar(&flags.backend, "backend", "", "local store: file or bolt")
	pf.StringVarP(&flags.passphrase, "passphrase", "p", "", "passphrase protecting the local store")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&flags.username, "user", "", "username (with --session, signs in instead of resuming)")
	pf.StringVar(&flags.sessionID, "session", "", "session id from the account service")
	pf.StringVar(&flags.seed, "seed", "", "account seed")

	root.AddCommand(
		keygenCmd(),
		fingerprintCmd(),
		linkCmd(),
		itemsCmd(),
		insertCmd(),
		updateCmd(),
		deleteCmd(),
		shareCmd(),
		acceptCmd(),
		backupCmd(),
		watchCmd(),
		signoutCmd(),
	)
	return root.Execute()
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cipherdb", "config.yaml")
}

func applyFlags(cmd *cobra.Command) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("home", &cfg.Home, flags.home)
	set("relay", &cfg.RelayURL, flags.relayURL)
	set("app", &cfg.AppID, flags.appID)
	set("log-level", &cfg.LogLevel, flags.logLevel)
	if cmd.Flags().Changed("remember") {
		cfg.Remember = domain.RememberMe(flags.remember)
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend = store.Backend(flags.backend)
	}
	cfg.Passphrase = flags.passphrase
	if cfg.Passphrase == "" {
		cfg.Passphrase = os.Getenv("CIPHERDB_PASSPHRASE")
	}
}

// build wires the app without signing in.
func build(cmd *cobra.Command) error {
	if appCtx != nil {
		return nil
	}
	log := cfg.Logger(cmd.ErrOrStderr())
	w, err := app.NewWire(cfg, newTerminalConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr()), log, func(fp domain.Fingerprint) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Waiting for another device. Confirm this fingerprint there: %s\n", crypto.DisplayFingerprint(fp))
	})
	if err != nil {
		return err
	}
	appCtx = app.New(w)
	return nil
}

// connect builds the app and signs in. It is called by every command that
// talks to the relay.
func connect(ctx context.Context, cmd *cobra.Command) error {
	if err := build(cmd); err != nil {
		return err
	}
	return appCtx.Start(ctx, app.Credentials{
		Username:  domain.Username(flags.username),
		SessionID: flags.sessionID,
		Seed:      flags.seed,
	})
}

// signalContext is canceled on interrupt.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
