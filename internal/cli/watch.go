package cli

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/primebank/primebank-web/internal/session"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the session fresh until interrupted",
		Long:  "Run the refresh scheduler in the foreground, printing every session change. Exits when the session ends.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd)
		},
	}
}

func watch(ctx context.Context, cmd *cobra.Command) error {
	coord, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ended := make(chan struct{})
	var once sync.Once

	unsubscribe := coord.Store().Subscribe(func(st session.State) {
		switch {
		case st.Authenticated():
			fmt.Fprint(out, "session active: ")
			printExpiry(out, st)
		case st.HasAttemptedRefresh:
			once.Do(func() {
				fmt.Fprintln(out, "session ended")
				close(ended)
			})
		}
	})
	defer unsubscribe()

	coord.Start(ctx)
	defer coord.Stop()

	if st := coord.Snapshot(); st.Authenticated() {
		fmt.Fprintf(out, "watching session of %s\n", st.User.Email)
	}

	select {
	case <-ctx.Done():
		return nil
	case <-ended:
		return fmt.Errorf("session ended; sign in again")
	}
}
