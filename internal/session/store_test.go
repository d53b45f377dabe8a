package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/primebank/primebank-web/internal/graphql"
	"github.com/primebank/primebank-web/internal/models"
	"github.com/primebank/primebank-web/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp int64) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp}).SignedString([]byte("test-secret-32-bytes-should-be-long"))
	require.NoError(t, err)
	return s
}

func TestLogin_LastCallWinsAndManagerNormalized(t *testing.T) {
	ctx := context.Background()
	area := storage.NewMemoryArea()
	s := NewStore(ctx, area, &fakeAPI{})

	s.Login(ctx, LoginInput{User: models.User{ID: "1", Email: "a@x", IsManager: true}})
	require.True(t, s.Snapshot().User.IsManager)

	s.Login(ctx, LoginInput{User: models.User{ID: "2", Email: "b@x"}})
	st := s.Snapshot()
	require.Equal(t, "2", st.User.ID)
	require.False(t, st.User.IsManager)

	s.Login(ctx, LoginInput{User: models.User{ID: "3", ManagedTeam: &models.Team{ID: "t9"}}})
	st = s.Snapshot()
	require.Equal(t, "3", st.User.ID)
	require.True(t, st.User.IsManager)
	require.True(t, st.Authenticated())
	require.True(t, st.HasAttemptedRefresh)

	raw, ok, err := area.Get(ctx, storage.KeyUser)
	require.NoError(t, err)
	require.True(t, ok)
	var persisted models.User
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	require.Equal(t, "3", persisted.ID)
	require.True(t, persisted.IsManager)
}

func TestLogin_ExpiryScale(t *testing.T) {
	ctx := context.Background()
	area := storage.NewMemoryArea()
	s := NewStore(ctx, area, &fakeAPI{})

	s.Login(ctx, LoginInput{User: models.User{ID: "1"}, Payload: map[string]any{"exp": float64(1700000000)}})
	require.Equal(t, int64(1700000000000), *s.Snapshot().TokenExpiry)
	v, _, _ := area.Get(ctx, storage.KeyTokenExpiry)
	require.Equal(t, "1700000000000", v)

	s.Login(ctx, LoginInput{User: models.User{ID: "1"}, Payload: map[string]any{"exp": float64(1700000000123)}})
	require.Equal(t, int64(1700000000123), *s.Snapshot().TokenExpiry)
}

func TestLogin_ExpiryFromCredentialWhenPayloadLacksIt(t *testing.T) {
	ctx := context.Background()
	s := NewStore(ctx, storage.NewMemoryArea(), &fakeAPI{})
	exp := time.Now().Add(time.Hour).Unix()

	s.Login(ctx, LoginInput{Credential: signedToken(t, exp), User: models.User{ID: "1"}, Payload: map[string]any{"email": "a@x"}})
	require.Equal(t, exp*1000, *s.Snapshot().TokenExpiry)

	s.Login(ctx, LoginInput{Credential: "opaque", User: models.User{ID: "1"}})
	require.Nil(t, s.Snapshot().TokenExpiry)
}

func TestLogin_RefreshRotation(t *testing.T) {
	ctx := context.Background()
	area := storage.NewMemoryArea()
	s := NewStore(ctx, area, &fakeAPI{})
	u := models.User{ID: "1"}

	s.Login(ctx, LoginInput{User: u, RefreshToken: graphql.Some("r1")})
	require.Equal(t, "r1", *s.Snapshot().RefreshToken)

	// not supplied: keep previous value
	s.Login(ctx, LoginInput{User: u})
	require.Equal(t, "r1", *s.Snapshot().RefreshToken)
	v, ok, _ := area.Get(ctx, storage.KeyRefreshToken)
	require.True(t, ok)
	require.Equal(t, "r1", v)

	s.Login(ctx, LoginInput{User: u, RefreshToken: graphql.Some("r2")})
	require.Equal(t, "r2", *s.Snapshot().RefreshToken)

	// explicit null clears it
	s.Login(ctx, LoginInput{User: u, RefreshToken: graphql.Null()})
	require.Nil(t, s.Snapshot().RefreshToken)
	_, ok, _ = area.Get(ctx, storage.KeyRefreshToken)
	require.False(t, ok)
}

func TestHydrate_PersistedUser(t *testing.T) {
	ctx := context.Background()
	area := storage.NewMemoryArea()
	require.NoError(t, area.Set(ctx, storage.KeyUser, `{"id":"5","email":"e@x","managedTeam":{"id":"t1"}}`))
	require.NoError(t, area.Set(ctx, storage.KeyTokenExpiry, "1700000000"))
	require.NoError(t, area.Set(ctx, storage.KeyRefreshToken, "r5"))

	st := NewStore(ctx, area, &fakeAPI{}).Snapshot()
	require.True(t, st.Authenticated())
	require.True(t, st.User.IsManager)
	require.True(t, st.HasAttemptedRefresh)
	require.Equal(t, int64(1700000000000), *st.TokenExpiry)
	require.Equal(t, "r5", *st.RefreshToken)
}

func TestHydrate_MalformedExpiryDropped(t *testing.T) {
	ctx := context.Background()
	area := storage.NewMemoryArea()
	require.NoError(t, area.Set(ctx, storage.KeyUser, `{"id":"5"}`))
	require.NoError(t, area.Set(ctx, storage.KeyTokenExpiry, "tomorrow"))

	st := NewStore(ctx, area, &fakeAPI{}).Snapshot()
	require.True(t, st.Authenticated())
	require.Nil(t, st.TokenExpiry)
	_, ok, _ := area.Get(ctx, storage.KeyTokenExpiry)
	require.False(t, ok)
}

func TestHydrate_NoUserDiscardsStrays(t *testing.T) {
	ctx := context.Background()
	area := storage.NewMemoryArea()
	require.NoError(t, area.Set(ctx, storage.KeyTokenExpiry, "1700000000000"))
	require.NoError(t, area.Set(ctx, storage.KeyRefreshToken, "stray"))

	st := NewStore(ctx, area, &fakeAPI{}).Snapshot()
	require.False(t, st.Authenticated())
	require.False(t, st.HasAttemptedRefresh)
	require.Nil(t, st.TokenExpiry)
	require.Nil(t, st.RefreshToken)
	_, ok, _ := area.Get(ctx, storage.KeyRefreshToken)
	require.False(t, ok)
	_, ok, _ = area.Get(ctx, storage.KeyTokenExpiry)
	require.False(t, ok)
}

func TestHydrate_UnparseableUser(t *testing.T) {
	ctx := context.Background()
	area := storage.NewMemoryArea()
	require.NoError(t, area.Set(ctx, storage.KeyUser, `{"id":`))
	require.NoError(t, area.Set(ctx, storage.KeyRefreshToken, "r"))

	st := NewStore(ctx, area, &fakeAPI{}).Snapshot()
	require.False(t, st.Authenticated())
	require.False(t, st.HasAttemptedRefresh)
	_, ok, _ := area.Get(ctx, storage.KeyUser)
	require.False(t, ok)
}

func TestLogout_RevokeWithoutRefreshToken(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	s := NewStore(ctx, storage.NewMemoryArea(), api)
	s.Login(ctx, LoginInput{User: models.User{ID: "1"}, Payload: map[string]any{"exp": float64(1700000000)}})

	s.Logout(ctx, LogoutOptions{Revoke: true})

	require.Equal(t, []string{"delete_token_cookie", "delete_refresh_cookie", "clear_cache"}, api.callLog())
	st := s.Snapshot()
	require.False(t, st.Authenticated())
	require.Nil(t, st.TokenExpiry)
	require.True(t, st.HasAttemptedRefresh)
}

func TestLogout_RevokesStoredTokenAndSurvivesFailures(t *testing.T) {
	ctx := context.Background()
	area := storage.NewMemoryArea()
	api := &fakeAPI{
		revokeErr:        errors.New("network down"),
		deleteTokenErr:   errors.New("network down"),
		deleteRefreshErr: errors.New("network down"),
		clearErr:         errors.New("cache busy"),
	}
	// refresh credential hydrated from the storage area
	require.NoError(t, area.Set(ctx, storage.KeyUser, `{"id":"1"}`))
	require.NoError(t, area.Set(ctx, storage.KeyRefreshToken, "r-stored"))
	s := NewStore(ctx, area, api)

	s.Logout(ctx, LogoutOptions{Revoke: true})

	require.Equal(t, []string{"revoke", "delete_token_cookie", "delete_refresh_cookie", "clear_cache"}, api.callLog())
	require.Equal(t, []string{"r-stored"}, api.revoked)
	st := s.Snapshot()
	require.False(t, st.Authenticated())
	require.Nil(t, st.RefreshToken)
	require.True(t, st.HasAttemptedRefresh)
	for _, k := range []string{storage.KeyUser, storage.KeyTokenExpiry, storage.KeyRefreshToken} {
		_, ok, _ := area.Get(ctx, k)
		assert.False(t, ok, k)
	}
}

func TestLogout_NoRevokeSkipsRevocation(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	s := NewStore(ctx, storage.NewMemoryArea(), api)
	s.Login(ctx, LoginInput{User: models.User{ID: "1"}, RefreshToken: graphql.Some("r1")})

	s.Logout(ctx, LogoutOptions{Revoke: false})
	require.Zero(t, api.count("revoke"))
	require.False(t, s.Snapshot().Authenticated())
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := NewStore(ctx, storage.NewMemoryArea(), &fakeAPI{})

	var seen []State
	unsub := s.Subscribe(func(st State) { seen = append(seen, st) })

	s.MarkRefreshAttempt()
	s.MarkRefreshAttempt() // no change, no notification
	s.SetLoading(true)
	s.SetLoading(true)
	require.Len(t, seen, 2)
	require.True(t, seen[0].HasAttemptedRefresh)
	require.True(t, seen[1].IsLoading)

	unsub()
	s.SetLoading(false)
	require.Len(t, seen, 2)
}

func TestRunBestEffort_RecoversPanics(t *testing.T) {
	var ran []string
	failed := runBestEffort(context.Background(), []cleanupStep{
		{name: "a", run: func(context.Context) error { panic("boom") }},
		{name: "b", run: func(context.Context) error { ran = append(ran, "b"); return nil }},
		{name: "c", run: func(context.Context) error { return errors.New("x") }},
	})
	require.Equal(t, []string{"a", "c"}, failed)
	require.Equal(t, []string{"b"}, ran)
}

// failingArea fails every read while keeping writes reachable through inner.
type failingArea struct {
	storage.Area
	err error
}

func (f failingArea) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, f.err
}

func TestHydrate_ReadErrorKeepsPersistedSession(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewMemoryArea()
	require.NoError(t, inner.Set(ctx, storage.KeyUser, `{"id":"5"}`))
	require.NoError(t, inner.Set(ctx, storage.KeyTokenExpiry, "1700000000000"))
	require.NoError(t, inner.Set(ctx, storage.KeyRefreshToken, "r5"))

	st := NewStore(ctx, failingArea{Area: inner, err: context.DeadlineExceeded}, &fakeAPI{}).Snapshot()
	require.False(t, st.Authenticated())
	require.False(t, st.HasAttemptedRefresh)

	for _, k := range []string{storage.KeyUser, storage.KeyTokenExpiry, storage.KeyRefreshToken} {
		_, ok, err := inner.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok, k)
	}
}
