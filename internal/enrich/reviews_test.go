package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/serp"
)

const acmeGraph = `{"@graph": [
	{"@type": "Organization", "name": "Trustpilot"},
	{"@type": "LocalBusiness", "name": "Acme Widgets", "description": "Widget maker",
	 "address": {"@type": "PostalAddress", "addressCountry": "US"}},
	{"@type": "AggregateRating", "ratingValue": "4.5", "reviewCount": "1234"},
	{"@type": "AggregateRating", "ratingValue": "1.0", "reviewCount": 1}
]}`

func TestTrustpilot_Reviews(t *testing.T) {
	search := &fakeSearch{links: map[string][]string{
		"acme-widgets site:trustpilot.com": {
			"https://www.trustpilot.com/review/other.com",
			"https://www.facebook.com/acme-widgets",
			"https://www.trustpilot.com/review/Acme-Widgets.com",
			"https://www.trustpilot.com/review/acme-widgets.net",
		},
	}}
	scraper := &fakeScraper{pages: map[string]*serp.ScrapeResponse{
		"https://www.trustpilot.com/review/Acme-Widgets.com": {
			Metadata: map[string]any{"og:title": "Acme Widgets is rated \"Excellent\""},
			JSONLD:   json.RawMessage(acmeGraph),
		},
	}}

	tp := NewTrustpilot(TrustpilotConfig{Search: search, Scraper: scraper})
	rec, err := tp.Reviews(context.Background(), "acme-widgets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if search.queries[0].Location != "United States" || search.queries[0].Num != 10 {
		t.Errorf("unexpected search request: %+v", search.queries[0])
	}
	if rec.OGTitle != `Acme Widgets is rated "Excellent"` {
		t.Errorf("unexpected og_title %q", rec.OGTitle)
	}
	if rec.ReviewCount == nil || *rec.ReviewCount != 1234 {
		t.Errorf("expected review count from the first rating, got %v", rec.ReviewCount)
	}
	var rating map[string]any
	if err := json.Unmarshal(rec.AggregateRating, &rating); err != nil || rating["ratingValue"] != "4.5" {
		t.Errorf("expected first AggregateRating, got %s", rec.AggregateRating)
	}
	info := rec.LocalBusinessInfo
	if info == nil || info.Name == nil || *info.Name != "Acme Widgets" || *info.Description != "Widget maker" {
		t.Fatalf("unexpected local business info: %+v", info)
	}
	if len(info.Address) == 0 {
		t.Errorf("expected address to be kept")
	}
}

func TestTrustpilot_NotFound(t *testing.T) {
	search := &fakeSearch{links: map[string][]string{
		"acme-widgets site:trustpilot.com": {
			"https://www.trustpilot.com/review/other.com",
			"https://acme-widgets.com/reviews",
		},
	}}
	tp := NewTrustpilot(TrustpilotConfig{Search: search, Scraper: &fakeScraper{}})

	_, err := tp.Reviews(context.Background(), "acme-widgets")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := recordMessage(err); got != "No Trustpilot page found for acme-widgets." {
		t.Errorf("unexpected record message %q", got)
	}
}

func TestTrustpilot_EmptyPage(t *testing.T) {
	link := "https://www.trustpilot.com/review/acme.com"
	search := &fakeSearch{links: map[string][]string{"acme site:trustpilot.com": {link}}}
	scraper := &fakeScraper{pages: map[string]*serp.ScrapeResponse{link: {}}}

	rec, err := NewTrustpilot(TrustpilotConfig{Search: search, Scraper: scraper}).Reviews(context.Background(), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, _ := json.Marshal(rec)
	want := `{"og_title":"N/A","aggregate_rating":null,"review_count":null,"local_business_info":{}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestTrustpilot_ScrapeFails(t *testing.T) {
	link := "https://www.trustpilot.com/review/acme.com"
	search := &fakeSearch{links: map[string][]string{"acme site:trustpilot.com": {link}}}

	_, err := NewTrustpilot(TrustpilotConfig{Search: search, Scraper: &fakeScraper{}}).Reviews(context.Background(), "acme")
	if err == nil {
		t.Fatal("expected scrape error")
	}
}

func TestReviewFromPage_TypeArrays(t *testing.T) {
	page := &serp.ScrapeResponse{JSONLD: json.RawMessage(`{"@graph": [
		{"@type": ["LocalBusiness", "Store"], "name": null},
		{"@type": "AggregateRating"}
	]}`)}

	rec := reviewFromPage(page)
	if rec.LocalBusinessInfo == nil {
		t.Fatal("expected LocalBusiness from a type array")
	}
	if rec.LocalBusinessInfo.Name != nil {
		t.Errorf("expected null name to stay nil")
	}
	if rec.AggregateRating == nil || rec.ReviewCount != nil {
		t.Errorf("expected rating without a count, got %s / %v", rec.AggregateRating, rec.ReviewCount)
	}
}
