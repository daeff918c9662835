// Package scraper fetches rendered pages for the enrichment lookups, either
// through the Scrapfly API or directly with a fingerprinted client.
package scraper

import (
	"context"

	"github.com/FranksOps/vetter/internal/model"
)

// Backend fetches one page. A non-nil error means the page cannot be used;
// the result is still returned when a response was received so callers can
// log or persist it.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, targetURL string) (*model.ScrapeResult, error)
}
