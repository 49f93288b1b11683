package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gennadis/apiclient/internal/config"
)

// Client issues requests against one backend with a fixed base URL and
// default headers. Its configuration does not change after New returns, so
// a single Client may be shared by any number of goroutines.
type Client struct {
	httpClient *http.Client
	rawBaseURL string
	baseURL    *url.URL
	headers    http.Header
}

type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New builds a Client from cfg. No retries, timeouts or interceptors are
// added on top of net/http.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	raw := strings.TrimSpace(cfg.BaseURL)
	baseURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url %q: %w", raw, err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", raw)
	}
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}

	c := &Client{
		httpClient: &http.Client{},
		rawBaseURL: raw,
		baseURL:    baseURL,
		headers:    cfg.Headers.Clone(),
	}
	if c.headers == nil {
		c.headers = make(http.Header)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var defaultClient = sync.OnceValue(func() *Client {
	cfg := config.FromEnv()
	c, err := New(cfg)
	if err != nil {
		slog.Error("Failed to create default API client", "base_url", cfg.BaseURL, "error", err)
		panic(err)
	}
	slog.Debug("default API client created", slog.String("base_url", c.BaseURL()))
	return c
})

// Default returns the shared process-wide Client. Its configuration is read
// from the environment on the first call only.
func Default() *Client {
	return defaultClient()
}

// BaseURL returns the base URL as configured.
func (c *Client) BaseURL() string {
	return c.rawBaseURL
}

// Headers returns a copy of the default request headers.
func (c *Client) Headers() http.Header {
	return c.headers.Clone()
}

// NewRequest builds a request for path relative to the base URL. Default
// headers are applied first, so headers passed in opts take precedence.
func (c *Client) NewRequest(ctx context.Context, method, path string, opts ...RequestOption) (*http.Request, error) {
	rc := &requestConfig{}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", rc.err)
	}

	target, err := c.resolve(path, rc.query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), rc.body())
	if err != nil {
		return nil, err
	}
	for k, vv := range c.headers {
		req.Header[k] = append([]string(nil), vv...)
	}
	for k, vv := range rc.header {
		req.Header[k] = append([]string(nil), vv...)
	}
	if rc.bearerToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+rc.bearerToken)
	}
	return req, nil
}

// Do sends req as is. Non-2xx responses are returned with a nil error and
// transport errors are returned unchanged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, path, opts)
}

func (c *Client) Post(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, path, opts)
}

func (c *Client) Put(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.send(ctx, http.MethodPut, path, opts)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return c.send(ctx, http.MethodDelete, path, opts)
}

func (c *Client) send(ctx context.Context, method, path string, opts []RequestOption) (*http.Response, error) {
	req, err := c.NewRequest(ctx, method, path, opts...)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// resolve joins a relative path onto the base URL the way string
// concatenation would: leading slashes are dropped so a base with a path
// prefix (http://host/api) keeps it, and the result never leaves the base
// origin. Absolute URLs pass through unchanged.
func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty request path")
	}
	u, err := url.Parse(p)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request path %q: %w", p, err)
	}
	if !u.IsAbs() {
		if u, err = c.join(p); err != nil {
			return nil, err
		}
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vv := range query {
			for _, v := range vv {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func (c *Client) join(p string) (*url.URL, error) {
	rel, _, _ := strings.Cut(p, "#")
	rel, rawQuery, _ := strings.Cut(rel, "?")
	rel, err := url.PathUnescape(strings.TrimLeft(rel, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to unescape request path %q: %w", p, err)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return nil, fmt.Errorf("request path %q escapes the base url", p)
		}
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + rel
	u.RawPath = ""
	u.RawQuery = rawQuery
	u.Fragment = ""
	return &u, nil
}
