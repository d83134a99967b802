package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmcleod/latchkey/flow"
)

var (
	registerUsername string
	registerPassword string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()
		return runCredentialFlow(cmd.Context(), c, flow.FlowRegister, registerUsername, registerPassword)
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().StringVarP(&registerUsername, "username", "u", "", "Username (prompted when omitted)")
	registerCmd.Flags().StringVarP(&registerPassword, "password", "p", "", "Password (prompted when omitted)")
}
