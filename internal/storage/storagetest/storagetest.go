// Package storagetest holds a conformance check shared by the backend tests.
package storagetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/storage"
)

// SampleRun returns a populated run created at createdAt.
func SampleRun(id, topic string, createdAt time.Time) *storage.Run {
	result := model.NewAggregateResult()
	result.DomainAge["https://www.acme-widgets.com/products"] = model.DomainAge{Years: 7}
	result.DomainAge["https://bolt.io"] = model.DomainAge{Err: "Error: unexpected status 500"}
	count := 42
	result.TrustpilotReviews["acme-widgets"] = model.ReviewRecord{
		OGTitle:         "Acme Widgets",
		AggregateRating: json.RawMessage(`{"@type":"AggregateRating","ratingValue":"4.1"}`),
		ReviewCount:     &count,
	}
	result.TrustpilotReviews["bolt"] = model.ReviewError("No Trustpilot page found for bolt.")
	result.CompanyData["acme-widgets"] = model.CompanyRecord{Data: json.RawMessage(`{"name":"Acme"}`)}
	result.CompanyData["bolt"] = model.CompanyError("Scraping failed: No company data script found.")

	return &storage.Run{
		ID:      id,
		Topic:   topic,
		Country: "USA",
		Queries: []string{topic + " suppliers", topic + " distributors"},
		Candidates: []model.Candidate{
			{BusinessName: "Acme", URL: "https://www.acme-widgets.com/products",
				Metadata: model.CandidateMetadata{Location: "United States", Sitelinks: []string{}}},
			{BusinessName: "Bolt", URL: "https://bolt.io",
				Metadata: model.CandidateMetadata{Location: "United States", Sitelinks: []string{"https://bolt.io/about"}}},
		},
		Result:    result,
		Duration:  1500 * time.Millisecond,
		CreatedAt: createdAt,
	}
}

// Run exercises Save and Query on a fresh backend.
func Run(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	first := SampleRun("run-1", "widgets", now.Add(-2*time.Minute))
	second := SampleRun("run-2", "gadgets", now.Add(-time.Minute))
	failed := SampleRun("run-3", "widgets", now)
	failed.Result = nil
	failed.Error = "context canceled"

	for _, r := range []*storage.Run{first, second, failed} {
		if err := b.Save(ctx, r); err != nil {
			t.Fatalf("Failed to save run %s: %v", r.ID, err)
		}
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query runs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(all))
	}
	if all[0].ID != "run-3" || all[2].ID != "run-1" {
		t.Errorf("Expected newest first, got %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	got := all[2]
	if got.Topic != first.Topic || got.Country != first.Country {
		t.Errorf("Expected topic/country %s/%s, got %s/%s", first.Topic, first.Country, got.Topic, got.Country)
	}
	if len(got.Queries) != 2 || got.Queries[1] != "widgets distributors" {
		t.Errorf("Unexpected queries %v", got.Queries)
	}
	if len(got.Candidates) != 2 || got.Candidates[1].Metadata.Sitelinks[0] != "https://bolt.io/about" {
		t.Errorf("Unexpected candidates %+v", got.Candidates)
	}
	if got.Duration.Milliseconds() != first.Duration.Milliseconds() {
		t.Errorf("Expected Duration %v, got %v", first.Duration, got.Duration)
	}
	if got.CreatedAt.Unix() != first.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", first.CreatedAt, got.CreatedAt)
	}
	if got.Result == nil {
		t.Fatal("Expected result to round trip")
	}
	if age := got.Result.DomainAge["https://www.acme-widgets.com/products"]; age.Years != 7 {
		t.Errorf("Expected domain age 7, got %+v", age)
	}
	if rec := got.Result.TrustpilotReviews["acme-widgets"]; rec.ReviewCount == nil || *rec.ReviewCount != 42 {
		t.Errorf("Unexpected review record %+v", rec)
	}
	if rec := got.Result.CompanyData["bolt"]; rec.Error != "Scraping failed: No company data script found." {
		t.Errorf("Unexpected company record %+v", rec)
	}
	if all[0].Result != nil || all[0].Error != "context canceled" {
		t.Errorf("Expected failed run without result, got %+v", all[0])
	}

	byTopic, err := b.Query(ctx, storage.Filter{Topic: "WIDGETS"})
	if err != nil {
		t.Fatalf("Failed to query by topic: %v", err)
	}
	if len(byTopic) != 2 {
		t.Errorf("Expected 2 widget runs, got %d", len(byTopic))
	}

	ok := false
	succeeded, err := b.Query(ctx, storage.Filter{Failed: &ok})
	if err != nil {
		t.Fatalf("Failed to query by failure: %v", err)
	}
	if len(succeeded) != 2 {
		t.Errorf("Expected 2 successful runs, got %d", len(succeeded))
	}

	since := now.Add(-90 * time.Second)
	recent, err := b.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("Failed to query with Since: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("Expected 2 recent runs, got %d", len(recent))
	}

	page, err := b.Query(ctx, storage.Filter{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "run-2" {
		t.Errorf("Expected run-2 on the second page, got %v", page)
	}
}
