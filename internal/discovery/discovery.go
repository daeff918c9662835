// Package discovery turns search queries into supplier candidates.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/serp"
)

// ResultsPerPage is the number of organic results requested per page.
const ResultsPerPage = 10

// DefaultExcludedDomains are marketplaces and social sites that never point
// at a supplier's own storefront.
var DefaultExcludedDomains = []string{
	"reddit.com",
	"quora.com",
	"linkedin.com",
	"ebay.com",
	"amazon.com",
	"walmart.com",
	"newegg.com",
	"bestbuy.com",
}

// Config configures a Discoverer.
type Config struct {
	// ExcludedDomains are appended to every query as -site: filters. Nil uses
	// DefaultExcludedDomains.
	ExcludedDomains []string
	Logger          *slog.Logger
}

// Discoverer runs the query × page search grid.
type Discoverer struct {
	search   serp.SERPProvider
	excluded []string
	suffix   string
	logger   *slog.Logger
}

// New returns a Discoverer backed by search.
func New(search serp.SERPProvider, cfg Config) *Discoverer {
	if cfg.ExcludedDomains == nil {
		cfg.ExcludedDomains = DefaultExcludedDomains
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	excluded := make([]string, 0, len(cfg.ExcludedDomains))
	var b strings.Builder
	for _, d := range cfg.ExcludedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		excluded = append(excluded, d)
		b.WriteString(" -site:")
		b.WriteString(d)
	}

	return &Discoverer{
		search:   search,
		excluded: excluded,
		suffix:   b.String(),
		logger:   cfg.Logger,
	}
}

// Discover issues one search per (query, page) pair and returns the organic
// results as candidates, in query order, then page order, then result order.
// A failed page is logged and skipped. Duplicates are kept.
//
// Only context cancellation stops the run early; the candidates gathered so
// far are returned with the context error.
func (d *Discoverer) Discover(ctx context.Context, topic, country string, queries []string, maxPages int) ([]model.Candidate, error) {
	if len(queries) == 0 {
		return nil, errors.New("discovery: at least one query is required")
	}
	if maxPages < 1 {
		return nil, errors.New("discovery: max pages must be at least 1")
	}

	candidates := make([]model.Candidate, 0, len(queries)*maxPages*ResultsPerPage)
	for _, query := range queries {
		for page := 0; page < maxPages; page++ {
			if err := ctx.Err(); err != nil {
				return candidates, err
			}

			resp, err := d.search.Search(ctx, serp.SearchRequest{
				Query:    query + d.suffix,
				Location: country,
				Num:      ResultsPerPage,
				Page:     page + 1, // Serper pages are 1-based, not result offsets
			})
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return candidates, ctxErr
				}
				d.logger.Warn("search page failed",
					"topic", topic, "query", query, "page", page+1, "err", err)
				continue
			}

			candidates = append(candidates, d.toCandidates(resp, country)...)
		}
	}

	d.logger.Info("discovery complete",
		"topic", topic, "country", country, "queries", len(queries), "candidates", len(candidates))
	return candidates, nil
}

func (d *Discoverer) toCandidates(resp *serp.SearchResponse, country string) []model.Candidate {
	location := resp.SearchParameters.Location
	if location == "" {
		location = country
	}

	out := make([]model.Candidate, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		if r.Link == "" || d.isExcluded(r.Link) {
			continue
		}
		if len(out) == ResultsPerPage {
			break
		}

		sitelinks := make([]string, 0, len(r.Sitelinks))
		for _, s := range r.Sitelinks {
			sitelinks = append(sitelinks, s.Link)
		}

		out = append(out, model.Candidate{
			BusinessName: r.Title,
			URL:          r.Link,
			Description:  r.Snippet,
			Metadata: model.CandidateMetadata{
				Location:  location,
				Sitelinks: sitelinks,
			},
		})
	}
	return out
}

// isExcluded catches results the upstream returned despite the -site filters.
func (d *Discoverer) isExcluded(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, ex := range d.excluded {
		if host == ex || strings.HasSuffix(host, "."+ex) {
			return true
		}
	}
	return false
}
