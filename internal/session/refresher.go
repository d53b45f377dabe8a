package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/primebank/primebank-web/internal/graphql"
	"github.com/primebank/primebank-web/internal/models"
	"github.com/primebank/primebank-web/pkg/metrics"
)

// Outcome is the result of one refresh executor invocation.
type Outcome int

const (
	OutcomeRefreshed Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeFailed:
		return "failed"
	}
	return "skipped"
}

// RefreshAPI is the network side of the refresh executor.
type RefreshAPI interface {
	RefreshToken(ctx context.Context, refreshToken *string) (*graphql.TokenResult, error)
	Me(ctx context.Context) (*models.User, error)
}

const (
	guardIdle int32 = iota
	guardInFlight
)

var errIncompleteRefresh = errors.New("refresh response missing token or payload")

// Refresher exchanges the refresh credential for a new access credential.
// At most one exchange is in flight; concurrent calls return OutcomeSkipped.
type Refresher struct {
	store *Store
	api   RefreshAPI
	guard atomic.Int32
}

func NewRefresher(store *Store, api RefreshAPI) *Refresher {
	return &Refresher{store: store, api: api}
}

// InFlight reports whether an exchange is currently running.
func (r *Refresher) InFlight() bool { return r.guard.Load() == guardInFlight }

// Refresh runs one exchange. It never panics and never returns an error: a
// failed exchange logs the session out without revoking. An exchange cut short
// because ctx ended reports OutcomeSkipped and keeps the session, since the
// credential was never rejected.
func (r *Refresher) Refresh(ctx context.Context) (out Outcome) {
	defer func() {
		metrics.RefreshTotal.WithLabelValues(out.String()).Inc()
		r.store.MarkRefreshAttempt()
	}()
	if !r.guard.CompareAndSwap(guardIdle, guardInFlight) {
		log.Debugf("refresh already in flight, skipping")
		return OutcomeSkipped
	}
	defer r.guard.Store(guardIdle)

	if err := r.exchange(ctx); err != nil {
		if ctx.Err() != nil {
			log.Warnf("token refresh abandoned: %v", err)
			return OutcomeSkipped
		}
		log.Errorf("token refresh failed: %v", err)
		r.store.Logout(context.WithoutCancel(ctx), LogoutOptions{Revoke: false})
		return OutcomeFailed
	}
	return OutcomeRefreshed
}

func (r *Refresher) exchange(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during refresh: %v", rec)
		}
	}()
	res, err := r.api.RefreshToken(ctx, r.store.Snapshot().RefreshToken)
	if err != nil {
		return err
	}
	if res == nil || res.Token == "" || res.Payload == nil {
		return errIncompleteRefresh
	}
	user, err := r.api.Me(ctx)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	r.store.Login(ctx, LoginInput{
		Credential:   res.Token,
		User:         *user,
		Payload:      res.Payload,
		RefreshToken: res.RefreshToken,
	})
	return nil
}
