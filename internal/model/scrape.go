package model

import "time"

// ScrapeResult represents the outcome of a single page fetch through a scrape
// backend.
type ScrapeResult struct {
	ID           string
	URL          string
	Method       string
	Backend      string
	StatusCode   int
	Headers      map[string][]string
	Body         []byte
	Duration     time.Duration
	DetectedBot  bool
	DetectionSrc string // e.g. "Cloudflare", "Akamai", "PerimeterX", "DataDome"
	CreatedAt    time.Time
	Error        string // non-empty if the fetch failed before an HTTP response
}
