package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// link signs in without a seed. The seed arrives from another device of
// the account once someone confirms there, or is pasted here by hand.
func linkCmd() *cobra.Command {
	var manual bool
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Sign in on a new device and fetch the seed from another one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.username == "" || flags.sessionID == "" {
				return fmt.Errorf("--user and --session are required")
			}
			flags.seed = ""
			ctx, cancel := signalContext(cmd)
			defer cancel()

			if err := build(cmd); err != nil {
				return err
			}
			if manual {
				sess := appCtx.Session
				fmt.Fprintln(cmd.ErrOrStderr(), "Or paste the seed and press enter:")
				go func() {
					sc := bufio.NewScanner(cmd.InOrStdin())
					for sc.Scan() {
						line := strings.TrimSpace(sc.Text())
						if line == "" {
							continue
						}
						if err := sess.ProvideSeed(line); err != nil {
							fmt.Fprintf(cmd.ErrOrStderr(), "seed not accepted: %v\n", err)
							continue
						}
						return
					}
				}()
			}
			if err := connect(ctx, cmd); err != nil {
				return err
			}
			fmt.Println("linked")
			return nil
		},
	}
	cmd.Flags().BoolVar(&manual, "manual", false, "also accept the seed typed on stdin")
	return cmd
}
