package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/serp"
)

// fakeSearch answers searches from a map of query prefix to links.
type fakeSearch struct {
	mu      sync.Mutex
	links   map[string][]string
	err     error
	queries []serp.SearchRequest
}

func (f *fakeSearch) Search(ctx context.Context, req serp.SearchRequest) (*serp.SearchResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	resp := &serp.SearchResponse{}
	for _, l := range f.links[req.Query] {
		resp.Organic = append(resp.Organic, serp.OrganicResult{Link: l})
	}
	return resp, nil
}

type fakeScraper struct {
	pages map[string]*serp.ScrapeResponse
}

func (f *fakeScraper) Scrape(ctx context.Context, pageURL string) (*serp.ScrapeResponse, error) {
	if p, ok := f.pages[pageURL]; ok {
		return p, nil
	}
	return nil, errors.New("serp: scrape " + pageURL + ": unexpected status 404")
}

type fakeBackend struct {
	bodies map[string]string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Fetch(ctx context.Context, targetURL string) (*model.ScrapeResult, error) {
	body, ok := f.bodies[targetURL]
	if !ok {
		return nil, errors.New("unexpected status 403")
	}
	return &model.ScrapeResult{URL: targetURL, StatusCode: 200, Body: []byte(body)}, nil
}

type fakeAges struct {
	mu    sync.Mutex
	ages  map[string]float64
	calls []string
	panic string
}

func (f *fakeAges) DomainAge(ctx context.Context, host string) (float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, host)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.panic != "" && strings.Contains(host, f.panic) {
		panic("boom")
	}
	age, ok := f.ages[host]
	if !ok {
		return 0, model.WithClass(model.ErrTransport, errors.New("dial tcp: connection refused"))
	}
	return age, nil
}

type staticReviews struct{}

func (staticReviews) Reviews(ctx context.Context, key string) (model.ReviewRecord, error) {
	return model.ReviewRecord{OGTitle: key}, nil
}

type staticCompany struct{}

func (staticCompany) Company(ctx context.Context, key string) (json.RawMessage, error) {
	return json.RawMessage(`{"name":"` + key + `"}`), nil
}
