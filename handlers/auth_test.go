package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/primebank/primebank-web/internal/graphql"
	"github.com/primebank/primebank-web/internal/models"
	"github.com/primebank/primebank-web/internal/session"
	"github.com/primebank/primebank-web/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI stands in for the GraphQL endpoint.
type fakeAPI struct {
	mu         sync.Mutex
	password   string
	user       models.User
	refreshErr error
	revoked    []string
}

func (f *fakeAPI) TokenAuth(ctx context.Context, email, password string) (*graphql.TokenResult, error) {
	if password != f.password {
		return nil, graphql.Errors{{Message: "Please enter valid credentials"}}
	}
	return &graphql.TokenResult{
		Token:        "access-1",
		Payload:      map[string]any{"exp": float64(time.Now().Add(time.Hour).Unix())},
		RefreshToken: graphql.Some("refresh-secret"),
	}, nil
}

func (f *fakeAPI) RefreshToken(ctx context.Context, rt *string) (*graphql.TokenResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &graphql.TokenResult{
		Token:   "access-2",
		Payload: map[string]any{"exp": float64(time.Now().Add(time.Hour).Unix())},
	}, nil
}

func (f *fakeAPI) Me(ctx context.Context) (*models.User, error) {
	u := f.user
	return &u, nil
}

func (f *fakeAPI) RevokeToken(ctx context.Context, rt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, rt)
	return nil
}

func (f *fakeAPI) DeleteTokenCookie(ctx context.Context) error        { return nil }
func (f *fakeAPI) DeleteRefreshTokenCookie(ctx context.Context) error { return nil }
func (f *fakeAPI) ClearStore(ctx context.Context) error               { return nil }

type fixture struct {
	api   *fakeAPI
	coord *session.Coordinator
	g     *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := &fakeAPI{password: "s3cret", user: models.User{ID: "42", Email: "ada@primebank.test", FirstName: "Ada", LastName: "Lovelace"}}
	coord := session.NewCoordinator(context.Background(), api, storage.NewMemoryArea(), session.SchedulerConfig{})
	src := func(c *gin.Context) (*session.Coordinator, bool) { return coord, true }

	g := gin.New()
	g.SetHTMLTemplate(Templates())
	NewAuthHandler(src).Register(g, nil)
	RegisterViews(g, func(c *gin.Context) (session.State, bool) { return coord.Snapshot(), true })
	return &fixture{api: api, coord: coord, g: g}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.g.ServeHTTP(w, req)
	return w
}

func formLogin(email, password string) *http.Request {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func TestLoginForm_SuccessOpensViews(t *testing.T) {
	f := newFixture(t)

	w := f.do(formLogin("ada@primebank.test", "s3cret"))
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/dashboard", w.Header().Get("Location"))

	w = f.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ada Lovelace")

	// employees are sent home from manager and admin views
	w = f.do(httptest.NewRequest(http.MethodGet, "/team", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard", w.Header().Get("Location"))

	w = f.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestLoginForm_InvalidCredentials(t *testing.T) {
	f := newFixture(t)

	w := f.do(formLogin("ada@primebank.test", "wrong"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")
	assert.Contains(t, w.Body.String(), `value="ada@primebank.test"`)
	require.False(t, f.coord.Snapshot().Authenticated())
}

func TestLoginJSON(t *testing.T) {
	f := newFixture(t)

	w := f.do(jsonRequest(http.MethodPost, "/login", `{"email":"ada@primebank.test","password":"nope"}`))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid email or password"}`, w.Body.String())

	w = f.do(jsonRequest(http.MethodPost, "/login", `{"email":"not-an-email","password":"x"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(jsonRequest(http.MethodPost, "/login", `{"email":"ada@primebank.test","password":"s3cret"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		User models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "42", body.User.ID)
}

func TestSessionSnapshotHidesCredentials(t *testing.T) {
	f := newFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var before SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))
	assert.False(t, before.Authenticated)
	assert.False(t, before.HasAttemptedRefresh)

	require.Equal(t, http.StatusSeeOther, f.do(formLogin("ada@primebank.test", "s3cret")).Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "refresh-secret")
	assert.NotContains(t, w.Body.String(), "access-1")
	var after SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.True(t, after.Authenticated)
	assert.True(t, after.HasAttemptedRefresh)
	require.NotNil(t, after.TokenExpiry)
	assert.Equal(t, "42", after.User.ID)
}

func TestLogoutRevokesAndRedirects(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusSeeOther, f.do(formLogin("ada@primebank.test", "s3cret")).Code)

	w := f.do(httptest.NewRequest(http.MethodPost, "/logout", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/login", w.Header().Get("Location"))
	require.Equal(t, []string{"refresh-secret"}, f.api.revoked)

	w = f.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login", w.Header().Get("Location"))
}

func TestRefreshEndpoint(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusSeeOther, f.do(formLogin("ada@primebank.test", "s3cret")).Code)

	w := f.do(httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"refreshed"`)
	// absent rotation keeps the refresh credential for logout
	require.NotNil(t, f.coord.Snapshot().RefreshToken)

	f.api.refreshErr = errors.New("upstream down")
	w = f.do(httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"failed"`)
	require.False(t, f.coord.Snapshot().Authenticated())
	// a failed refresh never revokes
	require.Empty(t, f.api.revoked)
}

func TestRefreshEndpointSurvivesClientDisconnect(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusSeeOther, f.do(formLogin("ada@primebank.test", "s3cret")).Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil).WithContext(ctx)
	w := f.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"refreshed"`)
	require.True(t, f.coord.Snapshot().Authenticated())
}

func TestProfileEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(jsonRequest(http.MethodGet, "/api/profile", ""))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	require.Equal(t, http.StatusSeeOther, f.do(formLogin("ada@primebank.test", "s3cret")).Code)
	w = f.do(jsonRequest(http.MethodGet, "/api/profile", ""))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		User models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "42", body.User.ID)
	assert.Equal(t, "ada@primebank.test", body.User.Email)
}

func TestViewsShowLoaderBeforeFirstDecision(t *testing.T) {
	f := newFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Location"))
	assert.Contains(t, w.Body.String(), "Loading")
}

func TestMissingTabIsUnavailable(t *testing.T) {
	g := gin.New()
	g.SetHTMLTemplate(Templates())
	NewAuthHandler(func(c *gin.Context) (*session.Coordinator, bool) { return nil, false }).Register(g, nil)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLoginLimiterIsMounted(t *testing.T) {
	f := newFixture(t)
	g := gin.New()
	g.SetHTMLTemplate(Templates())
	limited := func(c *gin.Context) { c.AbortWithStatus(http.StatusTooManyRequests) }
	NewAuthHandler(func(c *gin.Context) (*session.Coordinator, bool) { return f.coord, true }).Register(g, limited)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, formLogin("ada@primebank.test", "s3cret"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
