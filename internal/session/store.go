package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/primebank/primebank-web/internal/graphql"
	"github.com/primebank/primebank-web/internal/models"
	"github.com/primebank/primebank-web/internal/storage"
	"github.com/primebank/primebank-web/internal/tokens"
	"github.com/primebank/primebank-web/pkg/logger"
)

var log = logger.Named("session")

// State is an immutable snapshot of a tab session.
type State struct {
	User                *models.User
	TokenExpiry         *int64 // milliseconds since epoch
	RefreshToken        *string
	HasAttemptedRefresh bool
	IsLoading           bool
}

// Authenticated reports whether a user is present.
func (s State) Authenticated() bool { return s.User != nil }

// Remote is the server side of logout.
type Remote interface {
	RevokeToken(ctx context.Context, refreshToken string) error
	DeleteTokenCookie(ctx context.Context) error
	DeleteRefreshTokenCookie(ctx context.Context) error
	ClearStore(ctx context.Context) error
}

// LoginInput carries the result of a login or refresh into the store.
type LoginInput struct {
	Credential string
	User       models.User
	// Payload is the decoded token payload, when the API returned one.
	Payload map[string]any
	// RefreshToken is applied only when Set; a Set null clears the stored value.
	RefreshToken graphql.OptionalString
}

// LogoutOptions controls Logout.
type LogoutOptions struct {
	Revoke bool
}

// Store is the single source of truth for one tab's authentication state.
type Store struct {
	area   storage.Area
	remote Remote

	mu    sync.RWMutex
	state State

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// NewStore creates a store and hydrates it from the area.
func NewStore(ctx context.Context, area storage.Area, remote Remote) *Store {
	s := &Store{area: area, remote: remote, subs: make(map[int]func(State))}
	s.hydrate(ctx)
	return s
}

func (s *Store) hydrate(ctx context.Context) {
	raw, ok, err := s.area.Get(ctx, storage.KeyUser)
	if err != nil {
		// unreadable is not absent: start signed out but leave the area alone
		log.Warnf("read persisted user: %v", err)
		return
	}
	var user models.User
	if ok {
		if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID == "" {
			log.Warnf("discarding malformed persisted user")
			ok = false
		}
	}
	if !ok {
		// stray values without a user are leftovers from an interrupted logout
		s.removeKeys(ctx, storage.KeyUser, storage.KeyTokenExpiry, storage.KeyRefreshToken)
		return
	}

	st := State{HasAttemptedRefresh: true}
	n := user.Normalize()
	st.User = &n

	if v, ok, err := s.area.Get(ctx, storage.KeyTokenExpiry); err == nil && ok {
		if ms, perr := tokens.ParseStoredExpiry(v); perr == nil {
			st.TokenExpiry = &ms
		} else {
			log.Debugf("dropping malformed persisted expiry")
			s.removeKeys(ctx, storage.KeyTokenExpiry)
		}
	}
	if v, ok, err := s.area.Get(ctx, storage.KeyRefreshToken); err == nil && ok && v != "" {
		rt := v
		st.RefreshToken = &rt
	}
	s.state = st
	log.Debugf("hydrated session user=%s expiry_known=%t", n.ID, st.TokenExpiry != nil)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for every state change and returns its unsubscribe
// function. fn runs outside the store lock on the goroutine that changed state.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(st State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// update applies fn under the lock and notifies subscribers when it reports a change.
func (s *Store) update(fn func(st *State) bool) {
	s.mu.Lock()
	changed := fn(&s.state)
	st := s.state
	s.mu.Unlock()
	if changed {
		s.notify(st)
	}
}

// Login replaces the session with a freshly authenticated user.
func (s *Store) Login(ctx context.Context, in LoginInput) {
	user := in.User.Normalize()

	var expiry *int64
	if ms, ok := tokens.ExpiryFromClaims(in.Payload); ok {
		expiry = &ms
	} else if in.Credential != "" {
		if ms, err := tokens.ExpiryFromToken(in.Credential); err == nil {
			expiry = &ms
		} else {
			log.Debugf("token expiry unknown: %v", err)
		}
	}

	if b, err := json.Marshal(user); err == nil {
		s.persist(ctx, storage.KeyUser, b)
	}
	if expiry != nil {
		s.persist(ctx, storage.KeyTokenExpiry, []byte(strconv.FormatInt(*expiry, 10)))
	} else {
		s.removeKeys(ctx, storage.KeyTokenExpiry)
	}
	if in.RefreshToken.Set {
		if in.RefreshToken.Value != nil && *in.RefreshToken.Value != "" {
			s.persist(ctx, storage.KeyRefreshToken, []byte(*in.RefreshToken.Value))
		} else {
			s.removeKeys(ctx, storage.KeyRefreshToken)
		}
	}

	s.update(func(st *State) bool {
		st.User = &user
		st.TokenExpiry = expiry
		if in.RefreshToken.Set {
			if in.RefreshToken.Value != nil && *in.RefreshToken.Value != "" {
				rt := *in.RefreshToken.Value
				st.RefreshToken = &rt
			} else {
				st.RefreshToken = nil
			}
		}
		st.HasAttemptedRefresh = true
		return true
	})
	log.Infof("session established user=%s", user.ID)
}

// MarkRefreshAttempt records that a refresh decision has been made.
func (s *Store) MarkRefreshAttempt() {
	s.update(func(st *State) bool {
		if st.HasAttemptedRefresh {
			return false
		}
		st.HasAttemptedRefresh = true
		return true
	})
}

// SetLoading toggles the in-progress flag shown by route guards.
func (s *Store) SetLoading(v bool) {
	s.update(func(st *State) bool {
		if st.IsLoading == v {
			return false
		}
		st.IsLoading = v
		return true
	})
}

// Logout tears the session down. Every server-side step is best effort; the
// local state is always cleared and the attempt flag always ends up true.
func (s *Store) Logout(ctx context.Context, opts LogoutOptions) {
	defer s.MarkRefreshAttempt()

	refresh := s.refreshCredential(ctx)
	steps := make([]cleanupStep, 0, 5)
	if opts.Revoke && refresh != "" {
		steps = append(steps, cleanupStep{name: "revoke_token", run: func(ctx context.Context) error {
			return s.remote.RevokeToken(ctx, refresh)
		}})
	}
	steps = append(steps,
		cleanupStep{name: "delete_token_cookie", run: s.remote.DeleteTokenCookie},
		cleanupStep{name: "delete_refresh_cookie", run: s.remote.DeleteRefreshTokenCookie},
		cleanupStep{name: "clear_cache", run: s.remote.ClearStore},
		cleanupStep{name: "clear_local", run: s.clearLocal},
	)
	failed := runBestEffort(ctx, steps)
	if len(failed) > 0 {
		log.Warnf("logout finished with failed steps: %v", failed)
	} else {
		log.Infof("logout complete revoke=%t", opts.Revoke && refresh != "")
	}
}

func (s *Store) refreshCredential(ctx context.Context) string {
	if st := s.Snapshot(); st.RefreshToken != nil && *st.RefreshToken != "" {
		return *st.RefreshToken
	}
	v, ok, err := s.area.Get(ctx, storage.KeyRefreshToken)
	if err != nil || !ok {
		return ""
	}
	return v
}

func (s *Store) clearLocal(ctx context.Context) error {
	s.update(func(st *State) bool {
		*st = State{HasAttemptedRefresh: true}
		return true
	})
	return s.removeKeys(ctx, storage.KeyUser, storage.KeyTokenExpiry, storage.KeyRefreshToken)
}

func (s *Store) persist(ctx context.Context, key string, v []byte) {
	if err := s.area.Set(ctx, key, string(v)); err != nil {
		log.Warnf("persist %s: %v", key, err)
	}
}

func (s *Store) removeKeys(ctx context.Context, keys ...string) error {
	var first error
	for _, k := range keys {
		if err := s.area.Remove(ctx, k); err != nil {
			log.Warnf("remove %s: %v", k, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
