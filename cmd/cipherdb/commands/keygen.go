package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherdb/internal/keys"
)

// keygen prints a fresh account seed. Nothing is sent or stored.
func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new account seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := keys.NewSeed()
			if err != nil {
				return err
			}
			fmt.Println(seed.String())
			return nil
		},
	}
}
