package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/latchkey/flow"
)

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid access token, refreshing it first when needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()
		tok, err := c.GetValidAccessToken(cmd.Context(), flow.RefreshOptions{UserID: tokenUser})
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User whose token to print (default user when omitted)")
}
