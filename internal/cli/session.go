package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/primebank/primebank-web/internal/graphql"
	"github.com/primebank/primebank-web/internal/models"
	"github.com/primebank/primebank-web/internal/session"
	"github.com/primebank/primebank-web/internal/storage"
	"github.com/primebank/primebank-web/internal/tokens"
)

// openSession builds a coordinator over the session file. The scheduler is
// not started; only watch runs it.
func openSession(ctx context.Context) (*session.Coordinator, *graphql.Client, error) {
	opts := []graphql.Option{}
	if cfg != nil {
		opts = append(opts, graphql.WithTimeout(cfg.GraphQL.Timeout), graphql.WithAuthPrefix(cfg.GraphQL.AuthPrefix))
	}
	client, err := graphql.NewClient(flagEndpoint, opts...)
	if err != nil {
		return nil, nil, err
	}
	schedCfg := session.SchedulerConfig{}
	if cfg != nil {
		schedCfg.Lead = cfg.Refresh.Lead
		schedCfg.Fallback = cfg.Refresh.Fallback
	}
	area := storage.NewFileArea(flagSessionFile)
	return session.NewCoordinator(ctx, client, area, schedCfg), client, nil
}

func printUser(w io.Writer, u *models.User) {
	fmt.Fprintf(w, "%s <%s> id=%s", u.Name(), u.Email, u.ID)
	switch {
	case u.IsAdmin:
		fmt.Fprint(w, " role=admin")
	case u.IsManager:
		fmt.Fprint(w, " role=manager")
	default:
		fmt.Fprint(w, " role=employee")
	}
	if u.ManagedTeam != nil {
		fmt.Fprintf(w, " manages=%q", u.ManagedTeam.Name)
	}
	fmt.Fprintln(w)
}

func printExpiry(w io.Writer, st session.State) {
	if st.TokenExpiry == nil {
		fmt.Fprintln(w, "access credential expiry: unknown")
		return
	}
	exp := tokens.Time(*st.TokenExpiry)
	fmt.Fprintf(w, "access credential expires %s (in %s)\n", exp.Format(time.RFC3339), time.Until(exp).Round(time.Second))
}
