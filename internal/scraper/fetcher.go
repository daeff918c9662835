package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/vetter/internal/bypass"
	"github.com/FranksOps/vetter/internal/fingerprint"
	"github.com/FranksOps/vetter/internal/metrics"
	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/pkg/httpclient"
	"github.com/FranksOps/vetter/pkg/proxy"
	"github.com/FranksOps/vetter/pkg/ratelimit"
	"github.com/FranksOps/vetter/pkg/useragent"
	"github.com/google/uuid"
)

// BackendDirect is the metric and result label for the direct fetcher.
const BackendDirect = "direct"

type contextKey string

const proxyKey contextKey = "proxy_url"

// FetchConfig configures the direct fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	// Country selects proxies and the Accept-Language header. Empty means any
	// proxy and US English.
	Country     string
	UAPool      *useragent.Pool
	Fingerprint fingerprint.Profile
	Limiter     *ratelimit.Limiter
	Logger      *slog.Logger
}

// Fetcher performs single URL fetches with a browser TLS fingerprint, rotating
// user agents and optional proxies.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

var _ Backend = (*Fetcher)(nil)

// NewFetcher initializes a Fetcher. One client is held for its lifetime so
// cookie jars and pooled connections are reused.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = httpclient.DefaultTimeout
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.UAPool == nil {
		// Match the User-Agent to the TLS hello.
		cfg.UAPool = useragent.NewPool(nil).ForBrowser(string(cfg.Fingerprint))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Per-request proxy rotation: the proxy chosen in Fetch travels in the
	// request context.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{Proxy: proxyFunc})
	if err != nil {
		return nil, fmt.Errorf("scraper: setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Name implements Backend.
func (f *Fetcher) Name() string { return BackendDirect }

// Fetch executes a GET request to targetURL. Non-2xx responses and bot
// challenges are returned as errors alongside the captured result.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*model.ScrapeResult, error) {
	result := &model.ScrapeResult{
		ID:        uuid.New().String(),
		URL:       targetURL,
		Method:    http.MethodGet,
		Backend:   BackendDirect,
		CreatedAt: time.Now().UTC(),
	}

	if err := f.config.Limiter.Wait(ctx); err != nil {
		result.Error = fmt.Sprintf("rate limiter failed: %v", err)
		return result, err
	}

	start := time.Now()
	res, err := f.do(ctx, result, targetURL)
	metrics.RecordCall(BackendDirect, start, err)
	return res, err
}

func (f *Fetcher) do(ctx context.Context, result *model.ScrapeResult, targetURL string) (*model.ScrapeResult, error) {
	start := time.Now()
	fail := func(err error) (*model.ScrapeResult, error) {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return fail(fmt.Errorf("scraper: create request: %w", err))
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.NextFor(f.config.Country)
	}
	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", useragent.LanguageFor(f.config.Country))

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.Report(activeProxy, err)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Host).Inc()
			f.config.Logger.Warn("proxy request failed", "proxy", activeProxy.Host, "err", err)
		}
		return fail(model.WithClass(model.ErrTransport, fmt.Errorf("scraper: request failed: %w", err)))
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.Report(activeProxy, nil)
	}

	body, err := io.ReadAll(resp.Body)
	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.Body = body
	if err != nil {
		return fail(model.WithClass(model.ErrTransport, fmt.Errorf("scraper: read body: %w", err)))
	}
	result.Duration = time.Since(start)
	metrics.RecordBytes(BackendDirect, len(body))

	bypass.Analyze(result, bypass.DefaultSignatures)
	if err := bypass.Check(result); err != nil {
		result.Error = err.Error()
		return result, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(model.WithClass(model.ErrTransport, &httpclient.StatusError{StatusCode: resp.StatusCode}))
	}
	return result, nil
}
