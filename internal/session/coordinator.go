package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/primebank/primebank-web/internal/graphql"
	"github.com/primebank/primebank-web/internal/models"
	"github.com/primebank/primebank-web/internal/storage"
)

// API is everything the coordinator needs from the GraphQL endpoint.
// *graphql.Client satisfies it.
type API interface {
	Remote
	RefreshAPI
	TokenAuth(ctx context.Context, email, password string) (*graphql.TokenResult, error)
}

// ProfileAPI is implemented by clients that serve the identity from their
// query cache. *graphql.Client satisfies it.
type ProfileAPI interface {
	Profile(ctx context.Context) (*models.User, error)
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// Coordinator owns one tab's session lifecycle: store, refresh executor and
// scheduler, all talking to the same API client.
type Coordinator struct {
	api       API
	store     *Store
	refresher *Refresher
	scheduler *Scheduler
}

// NewCoordinator hydrates a store from area and prepares the scheduler.
// Nothing touches the network until Start.
func NewCoordinator(ctx context.Context, api API, area storage.Area, cfg SchedulerConfig) *Coordinator {
	store := NewStore(ctx, area, api)
	refresher := NewRefresher(store, api)
	return &Coordinator{
		api:       api,
		store:     store,
		refresher: refresher,
		scheduler: NewScheduler(store, refresher, cfg),
	}
}

func (c *Coordinator) Store() *Store         { return c.store }
func (c *Coordinator) Scheduler() *Scheduler { return c.scheduler }

// Snapshot is shorthand for Store().Snapshot().
func (c *Coordinator) Snapshot() State { return c.store.Snapshot() }

// Start runs the bootstrap check and keeps renewing until Stop.
func (c *Coordinator) Start(ctx context.Context) { c.scheduler.Start(ctx) }

// Stop cancels timers and waits for scheduled refreshes to finish.
func (c *Coordinator) Stop() { c.scheduler.Stop() }

// Login authenticates with email and password and establishes the session.
func (c *Coordinator) Login(ctx context.Context, email, password string) (*models.User, error) {
	c.store.SetLoading(true)
	defer c.store.SetLoading(false)

	res, err := c.api.TokenAuth(ctx, email, password)
	if err != nil {
		if errors.Is(err, graphql.ErrUnauthenticated) || isCredentialError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("token auth: %w", err)
	}
	user, err := c.api.Me(ctx)
	if err != nil {
		// the client already holds the new access credential; the store never will
		if derr := c.api.DeleteTokenCookie(context.WithoutCancel(ctx)); derr != nil {
			log.Warnf("drop access credential after failed login: %v", derr)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := c.api.ClearStore(ctx); err != nil {
		log.Warnf("clear query cache on login: %v", err)
	}
	rotation := res.RefreshToken
	if !rotation.Set {
		// tokenAuth always defines the refresh credential of a new session
		rotation = graphql.Null()
	}
	c.store.Login(ctx, LoginInput{Credential: res.Token, User: *user, Payload: res.Payload, RefreshToken: rotation})
	st := c.store.Snapshot()
	return st.User, nil
}

func isCredentialError(err error) bool {
	var gerrs graphql.Errors
	if !errors.As(err, &gerrs) {
		return false
	}
	for _, e := range gerrs {
		if e.Message == "Please enter valid credentials" || e.Message == "Invalid credentials" {
			return true
		}
	}
	return false
}

// Logout ends the session and revokes the refresh credential.
func (c *Coordinator) Logout(ctx context.Context) {
	c.store.Logout(ctx, LogoutOptions{Revoke: true})
}

// Refresh runs the refresh executor on demand.
func (c *Coordinator) Refresh(ctx context.Context) Outcome {
	return c.refresher.Refresh(ctx)
}

// Do runs an API call. When the API rejects the access credential it refreshes
// once and retries if the session survived the refresh.
func (c *Coordinator) Do(ctx context.Context, call func(ctx context.Context) error) error {
	err := call(ctx)
	if err == nil || !errors.Is(err, graphql.ErrUnauthenticated) {
		return err
	}
	log.Infof("access credential rejected, refreshing")
	switch c.refresher.Refresh(ctx) {
	case OutcomeRefreshed:
		return call(ctx)
	case OutcomeSkipped:
		if c.store.Snapshot().Authenticated() {
			return call(ctx)
		}
	}
	return err
}

// Profile loads the signed-in user from the API, through the query cache when
// the client has one. A rejected access credential is refreshed once.
func (c *Coordinator) Profile(ctx context.Context) (*models.User, error) {
	load := c.api.Me
	if p, ok := c.api.(ProfileAPI); ok {
		load = p.Profile
	}
	var user *models.User
	err := c.Do(ctx, func(ctx context.Context) error {
		u, err := load(ctx)
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
