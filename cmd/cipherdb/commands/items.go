package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// items <db>: print the database's items as JSON.
func itemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "items <db>",
		Short: "List the items of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := connect(ctx, cmd); err != nil {
				return err
			}
			dbs, err := appCtx.Databases()
			if err != nil {
				return err
			}
			if err := dbs.Open(ctx, args[0], nil); err != nil {
				return err
			}
			items, err := dbs.Items(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(items); err != nil {
				return fmt.Errorf("print items: %w", err)
			}
			return nil
		},
	}
}
