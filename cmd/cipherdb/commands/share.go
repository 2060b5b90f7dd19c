package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherdb/internal/domain"
)

// share <db> <user>: offer another user access to a database.
func shareCmd() *cobra.Command {
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "share <db> <user>",
		Short: "Share a database with another user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dbs, err := openDB(ctx, cmd, args[0])
			if err != nil {
				return err
			}
			if err := dbs.Share(ctx, args[0], domain.Username(args[1]), readOnly); err != nil {
				return err
			}
			fmt.Printf("shared %s with %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "grant read access only")
	return cmd
}

// accept: review and accept databases other users shared.
func acceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept",
		Short: "Accept databases shared with you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := connect(ctx, cmd); err != nil {
				return err
			}
			dbs, err := appCtx.Databases()
			if err != nil {
				return err
			}
			n, err := dbs.AcceptGrants(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("accepted %d\n", n)
			return nil
		},
	}
}
