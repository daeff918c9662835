package serp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/vetter/internal/metrics"
	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/pkg/httpclient"
	"github.com/FranksOps/vetter/pkg/ratelimit"
)

// Default Serper endpoints.
const (
	DefaultSearchURL = "https://google.serper.dev/search"
	DefaultScrapeURL = "https://google.serper.dev/scrape"
)

// Metric backend labels.
const (
	backendSearch = "serper_search"
	backendScrape = "serper_scrape"
)

// Config configures a Serper client.
type Config struct {
	APIKey    string
	SearchURL string
	ScrapeURL string
	// HTTP is the client used for every call. Nil builds one with the
	// default timeout.
	HTTP *httpclient.Client
	// Limiter spaces calls to Serper. Nil means unpaced.
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
}

// Serper is a SERPProvider and PageScraper backed by serper.dev.
type Serper struct {
	apiKey    string
	searchURL string
	scrapeURL string
	http      *httpclient.Client
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

var (
	_ SERPProvider = (*Serper)(nil)
	_ PageScraper  = (*Serper)(nil)
)

// NewSerper validates cfg and returns a client.
func NewSerper(cfg Config) (*Serper, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("serp: api key is required: %w", model.ErrConfiguration)
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.ScrapeURL == "" {
		cfg.ScrapeURL = DefaultScrapeURL
	}
	if cfg.HTTP == nil {
		c, err := httpclient.New(httpclient.Config{MaxRedirects: 5})
		if err != nil {
			return nil, err
		}
		cfg.HTTP = c
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Serper{
		apiKey:    cfg.APIKey,
		searchURL: cfg.SearchURL,
		scrapeURL: cfg.ScrapeURL,
		http:      cfg.HTTP,
		limiter:   cfg.Limiter,
		logger:    cfg.Logger,
	}, nil
}

// Search runs one search call. Calls are never retried.
func (s *Serper) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Query == "" {
		return nil, errors.New("serp: query cannot be empty")
	}

	var out SearchResponse
	if err := s.post(ctx, backendSearch, s.searchURL, req, &out); err != nil {
		return nil, fmt.Errorf("serp: search %q: %w", req.Query, err)
	}

	s.logger.Debug("serper search",
		slog.String("query", req.Query),
		slog.Int("page", req.Page),
		slog.Int("organic", len(out.Organic)),
	)
	return &out, nil
}

// Scrape fetches pageURL through the Serper scrape API.
func (s *Serper) Scrape(ctx context.Context, pageURL string) (*ScrapeResponse, error) {
	if pageURL == "" {
		return nil, errors.New("serp: scrape url cannot be empty")
	}

	var out ScrapeResponse
	body := struct {
		URL string `json:"url"`
	}{URL: pageURL}
	if err := s.post(ctx, backendScrape, s.scrapeURL, body, &out); err != nil {
		return nil, fmt.Errorf("serp: scrape %s: %w", pageURL, err)
	}
	metrics.RecordBytes(backendScrape, len(out.Text))
	return &out, nil
}

func (s *Serper) post(ctx context.Context, backend, endpoint string, payload, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	err := s.http.PostJSON(ctx, endpoint, http.Header{"X-Api-Key": {s.apiKey}}, payload, out)
	metrics.RecordCall(backend, start, err)
	return model.Classify(err)
}
