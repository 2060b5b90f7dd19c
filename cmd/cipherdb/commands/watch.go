package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cipherdb/internal/domain"
)

// watch <db>: print the items on every change until interrupted.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <db>",
		Short: "Follow changes to a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			if err := connect(ctx, cmd); err != nil {
				return err
			}
			dbs, err := appCtx.Databases()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			onChange := func(items []domain.Item) {
				if err := enc.Encode(items); err != nil {
					fmt.Fprintf(os.Stderr, "print items: %v\n", err)
				}
			}
			if err := dbs.Open(ctx, args[0], onChange); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
}
