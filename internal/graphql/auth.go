package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/primebank/primebank-web/internal/models"
)

const (
	tokenAuthMutation = `mutation TokenAuth($email: String!, $password: String!) {
  tokenAuth(email: $email, password: $password) { token payload refreshToken refreshExpiresIn }
}`
	refreshTokenMutation = `mutation RefreshToken($refreshToken: String) {
  refreshToken(refreshToken: $refreshToken) { token payload refreshToken refreshExpiresIn }
}`
	revokeTokenMutation = `mutation RevokeToken($refreshToken: String!) {
  revokeToken(refreshToken: $refreshToken) { revoked }
}`
	deleteTokenCookieMutation = `mutation DeleteTokenCookie {
  deleteTokenCookie { deleted }
}`
	deleteRefreshTokenCookieMutation = `mutation DeleteRefreshTokenCookie {
  deleteRefreshTokenCookie { deleted }
}`
	meQuery = `query Me {
  me { id email firstName lastName isAdmin isManager managedTeam { id name } teams { id name } }
}`
)

// OptionalString distinguishes an absent field from an explicit null.
// Set is true whenever the field appeared in the JSON, Value is nil for null.
type OptionalString struct {
	Set   bool
	Value *string
}

// Some returns a supplied, non-null value.
func Some(s string) OptionalString { return OptionalString{Set: true, Value: &s} }

// Null returns a supplied null value.
func Null() OptionalString { return OptionalString{Set: true} }

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// TokenResult is the payload of tokenAuth and refreshToken.
type TokenResult struct {
	Token            string         `json:"token"`
	Payload          map[string]any `json:"payload"`
	RefreshToken     OptionalString `json:"refreshToken"`
	RefreshExpiresIn int64          `json:"refreshExpiresIn"`
}

var ErrEmptyToken = errors.New("graphql: response carried no token")

// TokenAuth exchanges email and password for an access credential.
func (c *Client) TokenAuth(ctx context.Context, email, password string) (*TokenResult, error) {
	var out struct {
		TokenAuth *TokenResult `json:"tokenAuth"`
	}
	err := c.Do(ctx, Request{
		Query:         tokenAuthMutation,
		OperationName: "TokenAuth",
		Variables:     map[string]any{"email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.TokenAuth == nil || out.TokenAuth.Token == "" {
		return nil, ErrEmptyToken
	}
	c.setAccessToken(out.TokenAuth.Token)
	return out.TokenAuth, nil
}

// RefreshToken renews the access credential. The refresh credential travels in
// the cookie jar; refreshToken, when non-nil, is also sent as a variable.
func (c *Client) RefreshToken(ctx context.Context, refreshToken *string) (*TokenResult, error) {
	vars := map[string]any{}
	if refreshToken != nil && *refreshToken != "" {
		vars["refreshToken"] = *refreshToken
	}
	var out struct {
		RefreshToken *TokenResult `json:"refreshToken"`
	}
	err := c.Do(ctx, Request{Query: refreshTokenMutation, OperationName: "RefreshToken", Variables: vars}, &out)
	if err != nil {
		return nil, err
	}
	if out.RefreshToken == nil || out.RefreshToken.Token == "" {
		return nil, ErrEmptyToken
	}
	c.setAccessToken(out.RefreshToken.Token)
	return out.RefreshToken, nil
}

// RevokeToken invalidates a refresh credential server side.
func (c *Client) RevokeToken(ctx context.Context, refreshToken string) error {
	var out struct {
		RevokeToken *struct {
			Revoked int64 `json:"revoked"`
		} `json:"revokeToken"`
	}
	return c.Do(ctx, Request{
		Query:         revokeTokenMutation,
		OperationName: "RevokeToken",
		Variables:     map[string]any{"refreshToken": refreshToken},
	}, &out)
}

// DeleteTokenCookie clears the server-set access cookie and forgets the
// access credential held by the client.
func (c *Client) DeleteTokenCookie(ctx context.Context) error {
	c.setAccessToken("")
	return c.Do(ctx, Request{Query: deleteTokenCookieMutation, OperationName: "DeleteTokenCookie"}, nil)
}

// DeleteRefreshTokenCookie clears the server-set refresh cookie.
func (c *Client) DeleteRefreshTokenCookie(ctx context.Context) error {
	return c.Do(ctx, Request{Query: deleteRefreshTokenCookieMutation, OperationName: "DeleteRefreshTokenCookie"}, nil)
}

// ClearStore empties the local query cache. It is purely local and ignores ctx.
func (c *Client) ClearStore(ctx context.Context) error {
	c.cache.Reset()
	return nil
}

// Me fetches the identity behind the current access credential. It bypasses
// the cache because login and refresh need the server's current answer.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out meResult
	if err := c.Do(ctx, Request{Query: meQuery, OperationName: "Me"}, &out); err != nil {
		return nil, err
	}
	return out.user()
}

// Profile is Me served from the query cache; the entry lives until the next
// ClearStore, which login and logout both run.
func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	req := Request{Query: meQuery, OperationName: "Me"}
	var out meResult
	if err := c.Query(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.Me == nil {
		if key, err := cacheKey(req); err == nil {
			c.cache.evict(key)
		}
	}
	return out.user()
}

type meResult struct {
	Me *models.User `json:"me"`
}

func (r meResult) user() (*models.User, error) {
	if r.Me == nil {
		return nil, fmt.Errorf("me: %w", ErrUnauthenticated)
	}
	return r.Me, nil
}
