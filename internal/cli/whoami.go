package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWhoamiCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Long:  "Show the persisted session. With --remote the user is reloaded from the API, refreshing the access credential when it was rejected.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			coord, _, err := openSession(ctx)
			if err != nil {
				return err
			}
			st := coord.Snapshot()
			if !st.Authenticated() {
				return fmt.Errorf("not signed in")
			}
			user := st.User
			if remote {
				fresh, err := coord.Profile(ctx)
				if err != nil {
					return fmt.Errorf("load user: %w", err)
				}
				user = fresh
			}
			printUser(cmd.OutOrStdout(), user)
			printExpiry(cmd.OutOrStdout(), coord.Snapshot())
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "reload the user from the API")
	return cmd
}
