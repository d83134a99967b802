package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutUser string

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()
		if err := c.Logout(logoutUser); err != nil {
			return err
		}
		fmt.Println("Session cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().StringVar(&logoutUser, "user", "", "User to log out (default user when omitted)")
}
