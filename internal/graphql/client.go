package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	gql "github.com/hasura/go-graphql-client"
	"github.com/primebank/primebank-web/pkg/logger"
)

var log = logger.Named("graphql")

// ErrUnauthenticated matches server responses that reject the access credential.
var ErrUnauthenticated = errors.New("graphql: unauthenticated")

// Request is a single GraphQL operation.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Error is one entry of the response "errors" array.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Errors is returned when the server answered with a non-empty errors array.
type Errors []Error

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, er := range e {
		msgs = append(msgs, er.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrUnauthenticated) match credential rejections.
func (e Errors) Is(target error) bool {
	if target != ErrUnauthenticated {
		return false
	}
	for _, er := range e {
		if isAuthError(er) {
			return true
		}
	}
	return false
}

var authMessages = []string{
	"signature has expired",
	"error decoding signature",
	"invalid token",
	"invalid refresh token",
	"refresh token is expired",
	"you do not have permission",
	"authentication credentials were not provided",
}

func isAuthError(e Error) bool {
	if code, _ := e.Extensions["code"].(string); code == "UNAUTHENTICATED" {
		return true
	}
	msg := strings.ToLower(e.Message)
	for _, m := range authMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// HTTPError reports a non-2xx answer without a GraphQL body.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graphql endpoint returned %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthenticated && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client. A fresh cookie jar is attached
// unless one is already set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each round trip. Zero keeps the transport default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithAuthPrefix sets the Authorization scheme used with the access credential.
func WithAuthPrefix(p string) Option {
	return func(c *Client) { c.authPrefix = p }
}

// Client is a credentialed GraphQL client. Cookies set by the API live in the
// client's own jar, so one Client represents one browser tab.
type Client struct {
	endpoint   string
	http       *http.Client
	gql        *gql.Client
	timeout    time.Duration
	authPrefix string
	cache      *Cache

	mu          sync.RWMutex
	accessToken string
}

// NewClient creates a client for the GraphQL endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("graphql endpoint missing")
	}
	c := &Client{endpoint: endpoint, authPrefix: "JWT", cache: NewCache()}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		hc := *c.http
		hc.Jar = jar
		c.http = &hc
	}
	if c.timeout > 0 {
		c.http.Timeout = c.timeout
	}
	c.gql = gql.NewClient(endpoint, recordingDoer{c.http}).WithRequestModifier(c.authorize)
	return c, nil
}

// Endpoint returns the configured API address.
func (c *Client) Endpoint() string { return c.endpoint }

// Cache exposes the query cache.
func (c *Client) Cache() *Cache { return c.cache }

func (c *Client) setAccessToken(tok string) {
	c.mu.Lock()
	c.accessToken = tok
	c.mu.Unlock()
}

// AccessToken returns the last access credential issued to this client.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) authorize(r *http.Request) {
	r.Header.Set("Accept", "application/json")
	if tok := c.AccessToken(); tok != "" {
		r.Header.Set("Authorization", c.authPrefix+" "+tok)
	}
}

// roundTrip is what the transport saw of the HTTP exchange behind one operation.
type roundTrip struct {
	status int
	body   []byte
}

type roundTripKey struct{}

// recordingDoer keeps the status and body of each exchange so non-2xx answers
// can be classified here rather than from the GraphQL library's error text.
type recordingDoer struct {
	hc *http.Client
}

func (d recordingDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.hc.Do(req)
	if err != nil {
		return nil, err
	}
	rt, ok := req.Context().Value(roundTripKey{}).(*roundTrip)
	if !ok {
		return resp, nil
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	rt.status = resp.StatusCode
	rt.body = raw
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp, nil
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors Errors          `json:"errors"`
}

// Do runs an operation and decodes "data" into out (which may be nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	rt := &roundTrip{}
	log.Debugf("request op=%s endpoint=%s", opName(req), c.endpoint)

	var opts []gql.Option
	if req.OperationName != "" {
		opts = append(opts, gql.OperationName(req.OperationName))
	}
	data, err := c.gql.ExecRaw(context.WithValue(ctx, roundTripKey{}, rt), req.Query, req.Variables, opts...)
	if err != nil {
		return c.classify(ctx, req, rt, err)
	}
	if rt.status != 0 && (rt.status < 200 || rt.status > 299) {
		return &HTTPError{StatusCode: rt.status, Body: truncate(string(rt.body), 256)}
	}
	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// classify maps a failed exchange onto Errors, *HTTPError or a wrapped
// context or transport error.
func (c *Client) classify(ctx context.Context, req Request, rt *roundTrip, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("graphql request %s: %w", opName(req), cerr)
	}
	if rt.status != 0 {
		var r response
		if jerr := json.Unmarshal(rt.body, &r); jerr == nil && len(r.Errors) > 0 {
			return r.Errors
		}
		if rt.status < 200 || rt.status > 299 {
			return &HTTPError{StatusCode: rt.status, Body: truncate(string(rt.body), 256)}
		}
	}
	var gerrs gql.Errors
	if errors.As(err, &gerrs) && rt.status != 0 {
		out := make(Errors, 0, len(gerrs))
		for _, e := range gerrs {
			out = append(out, Error{Message: e.Message, Extensions: e.Extensions})
		}
		return out
	}
	return fmt.Errorf("graphql request %s: %w", opName(req), err)
}

// Query runs a read operation through the cache.
func (c *Client) Query(ctx context.Context, req Request, out any) error {
	key, err := cacheKey(req)
	if err == nil {
		if b, ok := c.cache.get(key); ok {
			if out == nil {
				return nil
			}
			return json.Unmarshal(b, out)
		}
	}
	var raw json.RawMessage
	if err := c.Do(ctx, req, &raw); err != nil {
		return err
	}
	if key != "" && len(raw) > 0 {
		c.cache.put(key, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func opName(r Request) string {
	if r.OperationName != "" {
		return r.OperationName
	}
	return "anonymous"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
