// Package apiclient is a Go client for the airwave REST API. GET responses
// are served through a cache.Fetcher, so concurrent identical requests share
// one round trip and repeated reads within the TTL skip the network.
// Successful writes invalidate the cached reads of the resource they touch.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tom2tomtomtom/airwave/cache"
)

const DefaultBaseURL = "http://localhost:8080"

// APIError is returned for non-2xx responses
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// IsNotFound reports whether err is an APIError with status 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	http    *http.Client
	baseURL *url.URL
	fetcher *cache.Fetcher
	ttl     time.Duration
	logger  zerolog.Logger

	tokens oauth2.TokenSource
	creds  *clientcredentials.Config
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken sends a static bearer token
func WithToken(token string) Option {
	return func(c *Client) {
		c.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}
}

// WithClientCredentials fetches and refreshes bearer tokens with the OAuth2
// client-credentials grant
func WithClientCredentials(clientID, clientSecret, tokenURL string, scopes ...string) Option {
	return func(c *Client) {
		c.creds = &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		}
	}
}

// WithFetcher sets the cache used for GETs, e.g. one over a cache.FileStore
func WithFetcher(f *cache.Fetcher) Option {
	return func(c *Client) { c.fetcher = f }
}

// WithTTL sets how long GET responses stay cached
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	c := &Client{
		http:    http.DefaultClient,
		baseURL: u,
		ttl:     cache.DefaultTTL,
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.fetcher == nil {
		c.fetcher = cache.NewFetcher(cache.Instrument(cache.NewMemoryStore()), cache.WithLogger(c.logger))
	}
	if c.creds != nil {
		// token requests go out on the unauthenticated client
		c.tokens = c.creds.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, c.http))
	}
	if c.tokens != nil {
		c.http = &http.Client{
			Timeout:   c.http.Timeout,
			Transport: &oauth2.Transport{Source: c.tokens, Base: c.http.Transport},
		}
	}
	return c, nil
}

// Fetcher returns the client's cache
func (c *Client) Fetcher() *cache.Fetcher {
	return c.fetcher
}

// Invalidate drops locally cached responses whose key contains pattern
func (c *Client) Invalidate(ctx context.Context, pattern string) (int, error) {
	return c.fetcher.Invalidate(ctx, pattern)
}

// Stats reports the local cache statistics
func (c *Client) Stats() cache.Stats {
	return c.fetcher.Stats()
}

func (c *Client) url(p string, q map[string]string) string {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	qq := url.Values{}
	for k, v := range q {
		if v != "" {
			qq.Set(k, v)
		}
	}
	u.RawQuery = qq.Encode()
	return u.String()
}

// get serves a GET through the cache and decodes it into out
func (c *Client) get(ctx context.Context, p string, q map[string]string, out any) error {
	key := cache.RequestKey(http.MethodGet, p, q)
	body, err := c.fetcher.Fetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, http.MethodGet, p, q, nil)
	}, cache.WithTTL(c.ttl))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

// send performs an uncached request. Writes to /api resources invalidate
// that resource's cached reads on success.
func (c *Client) send(ctx context.Context, method, p string, q map[string]string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	body, err := c.do(ctx, method, p, q, payload)
	if err != nil {
		return err
	}

	if method != http.MethodGet && path.Dir(path.Clean(p)) != "/cache" {
		pattern := cache.ResourcePattern(p)
		if _, err := c.fetcher.Invalidate(ctx, pattern); err != nil {
			c.logger.Warn().Err(err).Str("pattern", pattern).Msg("local cache invalidation failed")
		}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, p string, q map[string]string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(p, q), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, p, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, p, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: p, StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil {
			apiErr.Message = e.Error
		}
		return nil, apiErr
	}
	return b, nil
}
