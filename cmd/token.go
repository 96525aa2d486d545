package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token <merchant-id>",
	Short: "Print a signed API token for a merchant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := api.NewAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL).Issue(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
