package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmcleod/latchkey/flow"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()
		return runCredentialFlow(cmd.Context(), c, flow.FlowLogin, loginUsername, loginPassword)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (prompted when omitted)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (prompted when omitted)")
}
