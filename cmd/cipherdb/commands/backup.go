package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// backup: store a password-protected copy of the seed with the relay.
func backupCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the seed under a password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Backup password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimSpace(line)
			}
			ctx := cmd.Context()
			if err := connect(ctx, cmd); err != nil {
				return err
			}
			if err := appCtx.Session.BackupSeed(ctx, password); err != nil {
				return err
			}
			fmt.Println("backed up")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "backup password (read from stdin if empty)")
	return cmd
}
