// Package httpclient is the single outbound HTTP client used for the search,
// scrape and enrichment APIs.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// DefaultTimeout bounds every outbound call when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is kept in a StatusError.
const maxErrorBody = 512

// ErrDecode marks a 2xx response whose body was not the expected JSON.
var ErrDecode = errors.New("httpclient: invalid JSON response")

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects < 0 disables following redirects.
	MaxRedirects int
	UseCookieJar bool
	// Transport overrides the default, e.g. for proxies or uTLS fingerprinting.
	Transport http.RoundTripper
}

// Client wraps http.Client with an explicit timeout, a redirect policy and
// JSON helpers. It never retries.
type Client struct {
	*http.Client
}

// StatusError is a non-2xx answer from an upstream JSON API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
		Transport:     cfg.Transport,
	}
	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		c.Jar = jar
	}
	return &Client{Client: c}, nil
}

func redirectPolicy(limit int) func(*http.Request, []*http.Request) error {
	if limit < 0 {
		return func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) > limit {
			return fmt.Errorf("httpclient: stopped after %d redirects", limit)
		}
		return nil
	}
}

// Do executes req under ctx, which controls cancellation independently of the
// client timeout. Query strings are dropped from transport errors because the
// APIs carry credentials there.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redact(ue.URL)
		}
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}

// DoJSON executes req and decodes a 2xx JSON body into out, which may be nil.
// Non-2xx responses produce a *StatusError carrying a truncated body.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w from %s: %v", ErrDecode, req.URL.Host, err)
	}
	return nil
}

// GetJSON issues a GET to endpoint with query appended and decodes the answer
// into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, header http.Header, out any) error {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	copyHeader(req.Header, header)
	return c.DoJSON(ctx, req, out)
}

// PostJSON posts payload as JSON to endpoint and decodes the answer into out.
func (c *Client) PostJSON(ctx context.Context, endpoint string, header http.Header, payload, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("httpclient: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	copyHeader(req.Header, header)
	return c.DoJSON(ctx, req, out)
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
