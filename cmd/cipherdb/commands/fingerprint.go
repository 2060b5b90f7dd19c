package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherdb/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print this account's key fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := connect(cmd.Context(), cmd); err != nil {
				return err
			}
			fp, err := appCtx.Session.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", crypto.DisplayFingerprint(fp))
			return nil
		},
	}
}
