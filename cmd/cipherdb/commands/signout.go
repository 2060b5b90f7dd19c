package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// signout ends the session. The remembered seed stays on this device.
func signoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out of the remembered session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := connect(ctx, cmd); err != nil {
				return err
			}
			if err := appCtx.Session.SignOut(ctx); err != nil {
				return err
			}
			fmt.Println("signed out")
			return nil
		},
	}
}
