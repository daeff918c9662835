package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/vetter/internal/bypass"
	"github.com/FranksOps/vetter/internal/metrics"
	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/pkg/httpclient"
	"github.com/FranksOps/vetter/pkg/ratelimit"
	"github.com/google/uuid"
)

// BackendScrapfly is the metric and result label for the Scrapfly backend.
const BackendScrapfly = "scrapfly"

// DefaultScrapflyURL is the Scrapfly scrape endpoint.
const DefaultScrapflyURL = "https://api.scrapfly.io/scrape"

// ScrapflyConfig configures the Scrapfly backend.
type ScrapflyConfig struct {
	APIKey   string
	Endpoint string
	// Country routes the request through Scrapfly proxies in that country.
	Country string
	// DisableASP turns off anti-scraping protection bypass. It is on by
	// default because the firmographic pages sit behind bot protection.
	DisableASP bool
	HTTP       *httpclient.Client
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
}

// Scrapfly fetches pages through the Scrapfly web scraping API.
type Scrapfly struct {
	cfg ScrapflyConfig
}

var _ Backend = (*Scrapfly)(nil)

type scrapflyResponse struct {
	Result struct {
		Content         string            `json:"content"`
		StatusCode      int               `json:"status_code"`
		Success         bool              `json:"success"`
		Reason          string            `json:"reason"`
		URL             string            `json:"url"`
		ResponseHeaders map[string]string `json:"response_headers"`
	} `json:"result"`
}

// NewScrapfly validates cfg and returns a backend.
func NewScrapfly(cfg ScrapflyConfig) (*Scrapfly, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("scraper: scrapfly api key is required: %w", model.ErrConfiguration)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultScrapflyURL
	}
	if cfg.Country == "" {
		cfg.Country = "US"
	}
	if cfg.HTTP == nil {
		// ASP renders can take a while; Scrapfly recommends a long client timeout.
		c, err := httpclient.New(httpclient.Config{Timeout: 2 * httpclient.DefaultTimeout, MaxRedirects: 5})
		if err != nil {
			return nil, err
		}
		cfg.HTTP = c
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scrapfly{cfg: cfg}, nil
}

// Name implements Backend.
func (s *Scrapfly) Name() string { return BackendScrapfly }

// Fetch scrapes targetURL. An upstream page status outside 2xx is an error.
func (s *Scrapfly) Fetch(ctx context.Context, targetURL string) (*model.ScrapeResult, error) {
	result := &model.ScrapeResult{
		ID:        uuid.New().String(),
		URL:       targetURL,
		Method:    http.MethodGet,
		Backend:   BackendScrapfly,
		CreatedAt: time.Now().UTC(),
	}
	fail := func(err error) (*model.ScrapeResult, error) {
		result.Error = err.Error()
		return result, err
	}

	if err := s.cfg.Limiter.Wait(ctx); err != nil {
		return fail(err)
	}

	q := url.Values{}
	q.Set("key", s.cfg.APIKey)
	q.Set("url", targetURL)
	q.Set("country", strings.ToLower(s.cfg.Country))
	if !s.cfg.DisableASP {
		q.Set("asp", "true")
	}
	start := time.Now()
	var out scrapflyResponse
	err := s.cfg.HTTP.GetJSON(ctx, s.cfg.Endpoint, q, nil, &out)
	result.Duration = time.Since(start)
	if err == nil {
		err = checkScrapfly(&out)
	}
	metrics.RecordCall(BackendScrapfly, start, err)

	result.StatusCode = out.Result.StatusCode
	if len(out.Result.ResponseHeaders) > 0 {
		result.Headers = make(map[string][]string, len(out.Result.ResponseHeaders))
		for k, v := range out.Result.ResponseHeaders {
			result.Headers[k] = []string{v}
		}
	}
	result.Body = []byte(out.Result.Content)

	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			s.cfg.Logger.Warn("scrapfly rejected request", "url", targetURL, "status", se.StatusCode)
		}
		return fail(model.Classify(fmt.Errorf("scraper: scrapfly %s: %w", targetURL, err)))
	}

	metrics.RecordBytes(BackendScrapfly, len(result.Body))
	// ASP can still hand back a challenge page with status 200.
	bypass.Analyze(result, bypass.DefaultSignatures)
	if err := bypass.Check(result); err != nil {
		return fail(err)
	}
	return result, nil
}

func checkScrapfly(out *scrapflyResponse) error {
	r := out.Result
	if r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
		return &httpclient.StatusError{StatusCode: r.StatusCode, Body: r.Reason}
	}
	if !r.Success && r.Reason != "" {
		return errors.New(r.Reason)
	}
	return nil
}
