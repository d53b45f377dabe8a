package session

import (
	"context"
	"sync"

	"github.com/primebank/primebank-web/internal/graphql"
	"github.com/primebank/primebank-web/internal/models"
)

// fakeAPI records every call; behaviour is set through its fields.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	refreshResult *graphql.TokenResult
	refreshErr    error
	refreshPanic  bool
	refreshGate   chan struct{}
	refreshSeen   chan struct{}
	refreshArgs   []*string
	refreshHangs  bool // wait for ctx like a stalled endpoint

	user  *models.User
	meErr error

	tokenAuthResult *graphql.TokenResult
	tokenAuthErr    error

	revokeErr        error
	deleteTokenErr   error
	deleteRefreshErr error
	clearErr         error
	revoked          []string
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) RefreshToken(ctx context.Context, refreshToken *string) (*graphql.TokenResult, error) {
	f.record("refresh")
	f.mu.Lock()
	f.refreshArgs = append(f.refreshArgs, refreshToken)
	gate, seen := f.refreshGate, f.refreshSeen
	f.mu.Unlock()
	if seen != nil {
		seen <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if f.refreshHangs {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.refreshPanic {
		panic("transport exploded")
	}
	return f.refreshResult, f.refreshErr
}

func (f *fakeAPI) Me(ctx context.Context) (*models.User, error) {
	f.record("me")
	if f.meErr != nil {
		return nil, f.meErr
	}
	u := *f.user
	return &u, nil
}

func (f *fakeAPI) TokenAuth(ctx context.Context, email, password string) (*graphql.TokenResult, error) {
	f.record("token_auth")
	return f.tokenAuthResult, f.tokenAuthErr
}

func (f *fakeAPI) RevokeToken(ctx context.Context, refreshToken string) error {
	f.record("revoke")
	f.mu.Lock()
	f.revoked = append(f.revoked, refreshToken)
	f.mu.Unlock()
	return f.revokeErr
}

func (f *fakeAPI) DeleteTokenCookie(ctx context.Context) error {
	f.record("delete_token_cookie")
	return f.deleteTokenErr
}

func (f *fakeAPI) DeleteRefreshTokenCookie(ctx context.Context) error {
	f.record("delete_refresh_cookie")
	return f.deleteRefreshErr
}

func (f *fakeAPI) ClearStore(ctx context.Context) error {
	f.record("clear_cache")
	return f.clearErr
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }
