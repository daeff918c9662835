package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/serp"
)

// ReviewSource builds the review-reputation record for a business key.
type ReviewSource interface {
	Reviews(ctx context.Context, key string) (model.ReviewRecord, error)
}

// TrustpilotConfig configures the Trustpilot review lookup.
type TrustpilotConfig struct {
	Search  serp.SERPProvider
	Scraper serp.PageScraper
	// Location is sent with the search. Empty uses "United States".
	Location string
}

// Trustpilot finds a business's Trustpilot page through search and reads its
// rating from the page's linked data.
type Trustpilot struct {
	search   serp.SERPProvider
	scraper  serp.PageScraper
	location string
}

var _ ReviewSource = (*Trustpilot)(nil)

const trustpilotDomain = "trustpilot.com"

// NewTrustpilot returns a review source.
func NewTrustpilot(cfg TrustpilotConfig) *Trustpilot {
	if cfg.Location == "" {
		cfg.Location = "United States"
	}
	return &Trustpilot{search: cfg.Search, scraper: cfg.Scraper, location: cfg.Location}
}

// Reviews searches "<key> site:trustpilot.com", takes the first result on
// trustpilot.com whose URL also contains key, and scrapes it.
func (t *Trustpilot) Reviews(ctx context.Context, key string) (model.ReviewRecord, error) {
	resp, err := t.search.Search(ctx, serp.SearchRequest{
		Query:    key + " site:" + trustpilotDomain,
		Location: t.location,
		Num:      10,
	})
	if err != nil {
		return model.ReviewRecord{}, err
	}

	link := firstLink(resp, trustpilotDomain, key)
	if link == "" {
		return model.ReviewRecord{}, &NotFoundError{Site: "Trustpilot", Key: key}
	}

	page, err := t.scraper.Scrape(ctx, link)
	if err != nil {
		return model.ReviewRecord{}, err
	}
	return reviewFromPage(page), nil
}

// firstLink returns the first organic link containing domain and, when key is
// non-empty, the key (case-insensitive).
func firstLink(resp *serp.SearchResponse, domain, key string) string {
	key = strings.ToLower(key)
	for _, r := range resp.Organic {
		link := strings.ToLower(r.Link)
		if !strings.Contains(link, domain) {
			continue
		}
		if key != "" && !strings.Contains(link, key) {
			continue
		}
		return r.Link
	}
	return ""
}

type ldNode map[string]json.RawMessage

func (n ldNode) isType(want string) bool {
	raw, ok := n["@type"]
	if !ok {
		return false
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single == want
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, t := range many {
			if t == want {
				return true
			}
		}
	}
	return false
}

func (n ldNode) str(key string) *string {
	raw, ok := n[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func reviewFromPage(page *serp.ScrapeResponse) model.ReviewRecord {
	rec := model.ReviewRecord{OGTitle: "N/A"}
	if title, ok := page.Meta("og:title"); ok {
		rec.OGTitle = title
	}

	var ld struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if len(page.JSONLD) > 0 {
		// Pages without a graph just yield an empty review record.
		_ = json.Unmarshal(page.JSONLD, &ld)
	}

	for _, raw := range ld.Graph {
		var node ldNode
		if err := json.Unmarshal(raw, &node); err != nil {
			continue
		}
		if rec.AggregateRating == nil && node.isType("AggregateRating") {
			rec.AggregateRating = raw
			var count flexNumber
			if err := json.Unmarshal(node["reviewCount"], &count); err == nil {
				n := int(count)
				rec.ReviewCount = &n
			}
		}
		if rec.LocalBusinessInfo == nil && node.isType("LocalBusiness") {
			rec.LocalBusinessInfo = &model.LocalBusinessInfo{
				Name:        node.str("name"),
				Description: node.str("description"),
				Address:     node["address"],
			}
		}
	}
	return rec
}
