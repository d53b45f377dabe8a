package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the refresh credential and forget the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, _, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			coord.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
