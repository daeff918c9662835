//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/vetter/internal/discovery"
	"github.com/FranksOps/vetter/internal/enrich"
	"github.com/FranksOps/vetter/internal/fingerprint"
	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/pipeline"
	"github.com/FranksOps/vetter/internal/report"
	"github.com/FranksOps/vetter/internal/scraper"
	"github.com/FranksOps/vetter/internal/serp"
	"github.com/FranksOps/vetter/internal/storage"
	"github.com/FranksOps/vetter/internal/storage/sqlite"
	"github.com/FranksOps/vetter/pkg/proxy"
	"github.com/FranksOps/vetter/pkg/useragent"
)

const companyPage = `<html><head>
<script id="app-root-state" type="application/json">{"pageData": {"name": "Acme Widgets", "employees": 120}}</script>
</head><body></body></html>`

const trustpilotGraph = `{"@graph": [
	{"@type": "LocalBusiness", "name": "Acme Widgets", "description": null},
	{"@type": "AggregateRating", "ratingValue": "4.2", "reviewCount": "87"}
]}`

// upstreams fakes Serper, APIVoid and Scrapfly on one server.
func upstreams(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	mux := http.NewServeMux()

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req serp.SearchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case req.Query == "acme-widgets site:trustpilot.com":
			fmt.Fprint(w, `{"organic": [{"link": "https://www.trustpilot.com/review/acme-widgets.com"}]}`)
		case req.Query == "acme-widgets site:zoominfo.com":
			fmt.Fprint(w, `{"organic": [{"link": "http://www.zoominfo.com/c/acme-widgets/42"}]}`)
		case strings.Contains(req.Query, "-site:reddit.com") && req.Page == 1:
			fmt.Fprint(w, `{
				"searchParameters": {"q": "ubiquiti dealers", "location": "United States"},
				"organic": [
					{"title": "Acme Widgets", "link": "https://www.acme-widgets.com/products", "snippet": "Ubiquiti dealer",
					 "sitelinks": [{"title": "Contact", "link": "https://www.acme-widgets.com/contact"}]},
					{"title": "Thread", "link": "https://www.reddit.com/r/Ubiquiti"},
					{"title": "Globex", "link": "https://globex.io/"}
				]
			}`)
		default:
			fmt.Fprint(w, `{"organic": []}`)
		}
	})
	mux.HandleFunc("/scrape", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprintf(w, `{"metadata": {"og:title": "Acme Widgets Reviews"}, "jsonld": %s}`, trustpilotGraph)
	})
	mux.HandleFunc("/apivoid", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("host") == "globex.io" {
			fmt.Fprint(w, `{"error": "host not found"}`)
			return
		}
		fmt.Fprint(w, `{"data": {"domain_age_in_years": 9}}`)
	})
	mux.HandleFunc("/scrapfly", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("asp") != "true" {
			t.Errorf("scrapfly call without asp: %s", r.URL.RawQuery)
		}
		out, _ := json.Marshal(map[string]any{"result": map[string]any{
			"content": companyPage, "status_code": 200, "success": true,
		}})
		w.Write(out)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, &calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAggregator(t *testing.T, base string, search *serp.Serper, backend scraper.Backend) *enrich.Aggregator {
	t.Helper()
	ages, err := enrich.NewAPIVoid(enrich.APIVoidConfig{APIKey: "k", Endpoint: base + "/apivoid"})
	if err != nil {
		t.Fatal(err)
	}
	agg, err := enrich.NewAggregator(enrich.Config{
		DomainAge:    ages,
		Reviews:      enrich.NewTrustpilot(enrich.TrustpilotConfig{Search: search, Scraper: search}),
		Firmographic: enrich.NewZoomInfo(enrich.ZoomInfoConfig{Search: search, Backend: backend}),
		Concurrency:  2,
		Logger:       quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return agg
}

func TestIntegration_RunAndReport(t *testing.T) {
	ts, _ := upstreams(t)
	ctx := context.Background()

	search, err := serp.NewSerper(serp.Config{APIKey: "k", SearchURL: ts.URL + "/search", ScrapeURL: ts.URL + "/scrape"})
	if err != nil {
		t.Fatal(err)
	}
	scrapfly, err := scraper.NewScrapfly(scraper.ScrapflyConfig{APIKey: "k", Endpoint: ts.URL + "/scrapfly"})
	if err != nil {
		t.Fatal(err)
	}
	store, err := sqlite.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	p, err := pipeline.New(pipeline.Config{
		Discoverer: discovery.New(search, discovery.Config{Logger: quietLogger()}),
		Aggregator: newAggregator(t, ts.URL, search, scrapfly),
		Storage:    store,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	run, err := p.Run(ctx, pipeline.Request{Topic: "Ubiquiti", Country: "USA", Queries: []string{"ubiquiti dealers"}})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(run.Candidates) != 2 {
		t.Fatalf("expected 2 candidates after exclusions, got %+v", run.Candidates)
	}
	if run.Candidates[0].Metadata.Location != "United States" || len(run.Candidates[0].Metadata.Sitelinks) != 1 {
		t.Errorf("unexpected metadata: %+v", run.Candidates[0].Metadata)
	}

	res := run.Result
	if got := res.DomainAge["https://www.acme-widgets.com/products"]; got.Years != 9 {
		t.Errorf("acme domain age = %+v", got)
	}
	if got := res.DomainAge["https://globex.io/"]; !got.IsError() || !strings.HasPrefix(got.Err, "Error: ") {
		t.Errorf("globex domain age should be an error marker, got %+v", got)
	}

	review := res.TrustpilotReviews["acme-widgets"]
	if review.IsError() || review.OGTitle != "Acme Widgets Reviews" || review.ReviewCount == nil || *review.ReviewCount != 87 {
		t.Errorf("unexpected review: %+v", review)
	}
	if review.LocalBusinessInfo == nil || review.LocalBusinessInfo.Description != nil {
		t.Errorf("null description should stay null: %+v", review.LocalBusinessInfo)
	}
	if got := res.TrustpilotReviews["globex"]; got.Error != "No Trustpilot page found for globex." {
		t.Errorf("globex review = %+v", got)
	}

	var company map[string]any
	if err := json.Unmarshal(res.CompanyData["acme-widgets"].Data, &company); err != nil || company["name"] != "Acme Widgets" {
		t.Errorf("unexpected company data %s (%v)", res.CompanyData["acme-widgets"].Data, err)
	}
	if got := res.CompanyData["globex"]; got.Error != "No ZoomInfo page found for globex." {
		t.Errorf("globex company = %+v", got)
	}

	// The stored run feeds the summary.
	runs, err := store.Query(ctx, storage.Filter{Topic: "ubiquiti"})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("expected the run to be stored, got %d runs", len(runs))
	}
	summary := report.GenerateSummary(runs)
	if summary.Candidates != 2 || summary.DomainAge.Succeeded != 1 || summary.DomainAge.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	var text strings.Builder
	if err := report.WriteText(&text, summary); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "Ubiquiti") {
		t.Errorf("text report missing topic:\n%s", text.String())
	}
}

func TestIntegration_DirectBackendThroughProxy(t *testing.T) {
	ts, _ := upstreams(t)

	var proxyHits int32
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&proxyHits, 1)
		if !strings.Contains(r.URL.String(), "zoominfo.com") {
			t.Errorf("unexpected proxied url %s", r.URL)
		}
		if r.Header.Get("User-Agent") != "IntegrationTest-UA" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, companyPage)
	}))
	defer proxySrv.Close()

	pool := proxy.NewPool(proxy.Config{})
	if err := pool.AddForCountry("US", proxySrv.URL); err != nil {
		t.Fatal(err)
	}
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      5 * time.Second,
		MaxRedirects: 5,
		Fingerprint:  fingerprint.ProfileGo,
		ProxyPool:    pool,
		Country:      "US",
		UAPool:       useragent.NewPool([]string{"IntegrationTest-UA"}),
		Logger:       quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	search, err := serp.NewSerper(serp.Config{APIKey: "k", SearchURL: ts.URL + "/search", ScrapeURL: ts.URL + "/scrape"})
	if err != nil {
		t.Fatal(err)
	}
	agg := newAggregator(t, ts.URL, search, fetcher)

	tool := &pipeline.AggregateTool{Aggregator: agg}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"suppliers": [{"business_name": "Acme Widgets", "url": "https://www.acme-widgets.com/"}]}`))
	if err != nil {
		t.Fatal(err)
	}

	if atomic.LoadInt32(&proxyHits) != 1 {
		t.Errorf("expected one proxied fetch, got %d", proxyHits)
	}
	var res model.AggregateResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("tool output is not an aggregate result: %v", err)
	}
	if rec := res.CompanyData["acme-widgets"]; rec.IsError() {
		t.Errorf("company lookup through proxy failed: %s", rec.Error)
	}
}
