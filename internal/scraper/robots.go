package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/temoto/robotstxt"
)

// ErrDisallowed is returned by RobotsGuard for paths robots.txt forbids.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// DefaultRobotsAgent is the user agent token matched against robots.txt groups.
const DefaultRobotsAgent = "vetter"

// RobotsGuard wraps a Backend and refuses URLs the host's robots.txt
// disallows. robots.txt is fetched through the wrapped backend once per host.
type RobotsGuard struct {
	next   Backend
	agent  string
	logger *slog.Logger
	mu     sync.RWMutex
	cache  map[string]*robotstxt.RobotsData
}

var _ Backend = (*RobotsGuard)(nil)

// NewRobotsGuard wraps next. An empty agent uses DefaultRobotsAgent.
func NewRobotsGuard(next Backend, agent string, logger *slog.Logger) *RobotsGuard {
	if agent == "" {
		agent = DefaultRobotsAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsGuard{
		next:   next,
		agent:  agent,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// Name implements Backend.
func (r *RobotsGuard) Name() string { return r.next.Name() }

// Fetch checks robots.txt and delegates to the wrapped backend.
func (r *RobotsGuard) Fetch(ctx context.Context, targetURL string) (*model.ScrapeResult, error) {
	allowed, err := r.IsAllowed(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("scraper: %s: %w", targetURL, ErrDisallowed)
	}
	return r.next.Fetch(ctx, targetURL)
}

// IsAllowed reports whether targetURL may be fetched. An unreachable or
// unparsable robots.txt allows everything.
func (r *RobotsGuard) IsAllowed(ctx context.Context, targetURL string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("scraper: invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	return data.FindGroup(r.agent).Test(u.EscapedPath()), nil
}

func (r *RobotsGuard) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()

	if exists {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, exists = r.cache[host]
	if exists {
		return data, nil
	}

	result, err := r.next.Fetch(ctx, host+"/robots.txt")
	if result != nil && result.StatusCode >= 400 && result.StatusCode < 500 {
		// No robots.txt: everything is allowed.
		r.cache[host] = nil
		return nil, nil
	}
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("fetch error: %w", err)
	}

	parsed, err := robotstxt.FromBytes(result.Body)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("parse error: %w", err)
	}

	r.cache[host] = parsed
	return parsed, nil
}
