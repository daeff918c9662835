package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/FranksOps/vetter/internal/config"
	"github.com/FranksOps/vetter/internal/discovery"
	"github.com/FranksOps/vetter/internal/enrich"
	"github.com/FranksOps/vetter/internal/fingerprint"
	"github.com/FranksOps/vetter/internal/metrics"
	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/pipeline"
	"github.com/FranksOps/vetter/internal/scraper"
	"github.com/FranksOps/vetter/internal/serp"
	"github.com/FranksOps/vetter/internal/storage"
	"github.com/FranksOps/vetter/internal/storage/csvbackend"
	"github.com/FranksOps/vetter/internal/storage/jsonbackend"
	"github.com/FranksOps/vetter/internal/storage/postgres"
	"github.com/FranksOps/vetter/internal/storage/sqlite"
	"github.com/FranksOps/vetter/pkg/httpclient"
	"github.com/FranksOps/vetter/pkg/proxy"
	"github.com/FranksOps/vetter/pkg/ratelimit"
)

// maxRedirects applies to every outbound client.
const maxRedirects = 5

// env owns the process-wide resources and builds components on demand so a
// command only needs the credentials it actually uses.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile *os.File
	metrics *metrics.Server

	serper  *serp.Serper
	store   storage.Backend
	proxies *proxy.Pool
}

func newEnv(cfg *config.Config) (*env, error) {
	logger, logFile, err := newLogger(os.Stderr, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	e := &env{cfg: cfg, logger: logger, logFile: logFile}
	if cfg.MetricsPort > 0 {
		e.metrics = metrics.Start(cfg.MetricsPort, logger)
		logger.Info("serving metrics", "port", cfg.MetricsPort)
	}
	return e, nil
}

// newLogger writes to w and, when configured, appends to the log file too.
func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, *os.File, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("config: log level %q: %w", cfg.LogLevel, model.ErrConfiguration)
	}

	var file *os.File
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		w = io.MultiWriter(w, f)
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text", "":
		h = slog.NewTextHandler(w, opts)
	default:
		if file != nil {
			file.Close()
		}
		return nil, nil, fmt.Errorf("config: log format %q: %w", cfg.LogFormat, model.ErrConfiguration)
	}
	return slog.New(h), file, nil
}

func (e *env) httpClient() (*httpclient.Client, error) {
	return httpclient.New(httpclient.Config{Timeout: e.cfg.Timeout, MaxRedirects: maxRedirects})
}

// limiter returns a fresh pacing limiter. Each backend gets its own.
func (e *env) limiter() *ratelimit.Limiter {
	return ratelimit.Every(e.cfg.Pacing, 0)
}

func (e *env) searchClient() (*serp.Serper, error) {
	if e.serper != nil {
		return e.serper, nil
	}
	if err := e.cfg.Require(config.SerperAPIKey); err != nil {
		return nil, err
	}
	hc, err := e.httpClient()
	if err != nil {
		return nil, err
	}
	s, err := serp.NewSerper(serp.Config{
		APIKey:    e.cfg.SerperAPIKey,
		SearchURL: e.cfg.SerperSearchURL,
		ScrapeURL: e.cfg.SerperScrapeURL,
		HTTP:      hc,
		Limiter:   e.limiter(),
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}
	e.serper = s
	return s, nil
}

func (e *env) discoverer() (*discovery.Discoverer, error) {
	s, err := e.searchClient()
	if err != nil {
		return nil, err
	}
	return discovery.New(s, discovery.Config{Logger: e.logger}), nil
}

func (e *env) aggregator() (*enrich.Aggregator, error) {
	// Every missing key is reported at once, before any call is made.
	if err := e.cfg.Require(e.cfg.EnrichmentCredentials()...); err != nil {
		return nil, err
	}
	s, err := e.searchClient()
	if err != nil {
		return nil, err
	}

	hc, err := e.httpClient()
	if err != nil {
		return nil, err
	}
	ages, err := enrich.NewAPIVoid(enrich.APIVoidConfig{
		APIKey:   e.cfg.APIVoidAPIKey,
		Endpoint: e.cfg.APIVoidURL,
		HTTP:     hc,
		Limiter:  e.limiter(),
	})
	if err != nil {
		return nil, err
	}

	backend, err := e.scrapeBackend()
	if err != nil {
		return nil, err
	}

	return enrich.NewAggregator(enrich.Config{
		DomainAge: ages,
		Reviews: enrich.NewTrustpilot(enrich.TrustpilotConfig{
			Search:   s,
			Scraper:  s,
			Location: e.cfg.ReviewLocation,
		}),
		Firmographic: enrich.NewZoomInfo(enrich.ZoomInfoConfig{
			Search:           s,
			Backend:          backend,
			Location:         e.cfg.FirmographicLocation,
			RequireKeyInLink: e.cfg.RequireKeyInFirmographicLink,
		}),
		Concurrency: e.cfg.Concurrency,
		Logger:      e.logger,
	})
}

// scrapeBackend builds the company page backend: Scrapfly, or the direct
// fetcher with its proxy pool, fingerprint and optional robots guard.
func (e *env) scrapeBackend() (scraper.Backend, error) {
	if e.cfg.ScrapeBackend == config.ScrapeBackendScrapfly {
		return scraper.NewScrapfly(scraper.ScrapflyConfig{
			APIKey:   e.cfg.ScrapflyAPIKey,
			Endpoint: e.cfg.ScrapflyURL,
			Country:  e.cfg.ProxyCountry,
			Limiter:  e.limiter(),
			Logger:   e.logger,
		})
	}

	profile, err := fingerprint.ParseProfile(e.cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConfiguration, err)
	}
	var pool *proxy.Pool
	if e.cfg.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(e.cfg.ProxyFile); err != nil {
			return nil, err
		}
		e.logger.Info("loaded proxies", "count", pool.Len(), "country", e.cfg.ProxyCountry)
		e.proxies = pool
	}
	f, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      e.cfg.Timeout,
		MaxRedirects: maxRedirects,
		UseCookieJar: true,
		ProxyPool:    pool,
		Country:      e.cfg.ProxyCountry,
		Fingerprint:  profile,
		Limiter:      e.limiter(),
		Logger:       e.logger,
	})
	if err != nil {
		return nil, err
	}
	if e.cfg.RespectRobots {
		return scraper.NewRobotsGuard(f, scraper.DefaultRobotsAgent, e.logger), nil
	}
	return f, nil
}

// storage opens the configured run store once. It returns nil when storage is
// disabled.
func (e *env) storage(ctx context.Context) (storage.Backend, error) {
	if e.store != nil {
		return e.store, nil
	}
	b, err := openStorage(ctx, e.cfg.StorageBackend, e.cfg.StorageDSN)
	if err != nil {
		return nil, err
	}
	e.store = b
	return b, nil
}

func openStorage(ctx context.Context, kind, dsn string) (storage.Backend, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	case "json":
		return jsonbackend.New(dsn)
	case "csv":
		return csvbackend.New(dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend %q: %w", kind, model.ErrConfiguration)
	}
}

func (e *env) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	if err := e.cfg.Require(e.cfg.EnrichmentCredentials()...); err != nil {
		return nil, err
	}
	d, err := e.discoverer()
	if err != nil {
		return nil, err
	}
	agg, err := e.aggregator()
	if err != nil {
		return nil, err
	}
	store, err := e.storage(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Config{
		Discoverer: d,
		Aggregator: agg,
		Storage:    store,
		Logger:     e.logger,
	})
}

// Close releases everything env opened.
func (e *env) Close(ctx context.Context) error {
	var errs []error
	if e.proxies != nil {
		s := e.proxies.Stats()
		e.logger.Info("proxy pool", "total", s.Total, "available", s.Available, "benched", s.Benched,
			"successes", s.Successes, "failures", s.Failures)
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	if err := e.metrics.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop metrics: %w", err))
	}
	if e.logFile != nil {
		errs = append(errs, e.logFile.Close())
	}
	return errors.Join(errs...)
}
