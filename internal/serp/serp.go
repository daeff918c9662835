// Package serp talks to the Serper Google search and page scrape APIs.
package serp

import (
	"context"
	"encoding/json"
)

// SearchRequest is one Serper search call. Page is 1-based; zero lets the
// upstream default to the first page.
type SearchRequest struct {
	Query    string `json:"q"`
	Location string `json:"location,omitempty"`
	Num      int    `json:"num,omitempty"`
	Page     int    `json:"page,omitempty"`
}

// SearchParameters echoes what the upstream actually searched with.
type SearchParameters struct {
	Query    string `json:"q"`
	Location string `json:"location"`
}

// Sitelink is a secondary link shown under an organic result.
type Sitelink struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// OrganicResult is one organic hit.
type OrganicResult struct {
	Title     string     `json:"title"`
	Link      string     `json:"link"`
	Snippet   string     `json:"snippet"`
	Position  int        `json:"position"`
	Sitelinks []Sitelink `json:"sitelinks"`
}

// SearchResponse is the subset of a Serper search response the pipeline uses.
type SearchResponse struct {
	SearchParameters SearchParameters `json:"searchParameters"`
	Organic          []OrganicResult  `json:"organic"`
}

// ScrapeResponse is the subset of a Serper scrape response the pipeline uses.
type ScrapeResponse struct {
	Text     string          `json:"text"`
	Metadata map[string]any  `json:"metadata"`
	JSONLD   json.RawMessage `json:"jsonld"`
}

// Meta returns the string metadata value for key.
func (r *ScrapeResponse) Meta(key string) (string, bool) {
	if r == nil || r.Metadata == nil {
		return "", false
	}
	s, ok := r.Metadata[key].(string)
	return s, ok
}

// SERPProvider runs search queries.
type SERPProvider interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// PageScraper fetches a page through the Serper scrape API.
type PageScraper interface {
	Scrape(ctx context.Context, pageURL string) (*ScrapeResponse, error)
}
