package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/latchkey/protocol"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Password recovery",
	Long:  `Commands for requesting a password reset and setting a new password.`,
}

var resetRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request a password reset email",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()
		msg, err := c.ForgotPassword(cmd.Context())
		if err != nil {
			return err
		}
		if msg.Type == protocol.TypeFail {
			return printFail(msg)
		}
		fmt.Println("Reset requested. Check your inbox for the reset token.")
		return nil
	},
}

var resetToken string

var resetCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Set a new password using the emailed reset token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		msg, err := c.SetupPasswordReset(cmd.Context(), resetToken)
		if err != nil {
			return err
		}
		if msg.Type == protocol.TypeFail {
			return printFail(msg)
		}

		password, err := prompt("New password")
		if err != nil {
			return err
		}
		res, err := c.SetNewPassword(cmd.Context(), password, nil)
		if err != nil {
			return err
		}
		return report(cmd.Context(), c, res)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.AddCommand(resetRequestCmd)
	resetCmd.AddCommand(resetCompleteCmd)
	resetCompleteCmd.Flags().StringVar(&resetToken, "token", "", "One-time reset token from the email")
	resetCompleteCmd.MarkFlagRequired("token")
}
