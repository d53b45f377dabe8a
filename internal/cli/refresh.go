package cli

import (
	"fmt"

	"github.com/primebank/primebank-web/internal/session"
	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh credential for a new access credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, _, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			if coord.Snapshot().RefreshToken == nil {
				return fmt.Errorf("not signed in")
			}
			if out := coord.Refresh(cmd.Context()); out != session.OutcomeRefreshed {
				return fmt.Errorf("refresh %s; sign in again", out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session refreshed")
			printExpiry(cmd.OutOrStdout(), coord.Snapshot())
			return nil
		},
	}
}
