package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/scraper"
	"github.com/FranksOps/vetter/internal/serp"
	"github.com/PuerkitoBio/goquery"
)

// FirmographicSource returns the firmographic payload for a business key.
type FirmographicSource interface {
	Company(ctx context.Context, key string) (json.RawMessage, error)
}

// ZoomInfoConfig configures the ZoomInfo company lookup.
type ZoomInfoConfig struct {
	Search serp.SERPProvider
	// Backend fetches the company page. It should bypass bot protection.
	Backend scraper.Backend
	// Location is sent with the search. Empty uses "United States".
	Location string
	// RequireKeyInLink only accepts result links containing the business key,
	// like the review lookup does.
	RequireKeyInLink bool
}

// ZoomInfo finds a company's ZoomInfo page and extracts the page state.
type ZoomInfo struct {
	search     serp.SERPProvider
	backend    scraper.Backend
	location   string
	requireKey bool
}

var _ FirmographicSource = (*ZoomInfo)(nil)

const zoominfoDomain = "zoominfo.com"

// companyScripts are the state script ids, in lookup order.
var companyScripts = []string{"app-root-state", "ng-state"}

// NewZoomInfo returns a firmographic source.
func NewZoomInfo(cfg ZoomInfoConfig) *ZoomInfo {
	if cfg.Location == "" {
		cfg.Location = "United States"
	}
	return &ZoomInfo{
		search:     cfg.Search,
		backend:    cfg.Backend,
		location:   cfg.Location,
		requireKey: cfg.RequireKeyInLink,
	}
}

// Company searches "<key> site:zoominfo.com", fetches the first zoominfo.com
// result and returns its pageData.
func (z *ZoomInfo) Company(ctx context.Context, key string) (json.RawMessage, error) {
	resp, err := z.search.Search(ctx, serp.SearchRequest{
		Query:    key + " site:" + zoominfoDomain,
		Location: z.location,
		Num:      10,
	})
	if err != nil {
		return nil, err
	}

	match := ""
	if z.requireKey {
		match = key
	}
	link := firstLink(resp, zoominfoDomain, match)
	if link == "" {
		return nil, &NotFoundError{Site: "ZoomInfo", Key: key}
	}

	page, err := z.backend.Fetch(ctx, link)
	if err != nil {
		return nil, &ScrapeError{Err: err}
	}
	data, err := ParseCompanyPage(page.Body)
	if err != nil {
		return nil, &ScrapeError{Err: err}
	}
	return data, nil
}

// ParseCompanyPage extracts pageData from the JSON embedded in
// script#app-root-state, or script#ng-state when the first is absent or empty.
func ParseCompanyPage(body []byte) (json.RawMessage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, model.WithClass(model.ErrParse, fmt.Errorf("parse company page: %w", err))
	}

	var text string
	for _, id := range companyScripts {
		text = strings.TrimSpace(doc.Find("script#" + id).First().Text())
		if text != "" {
			break
		}
	}
	if text == "" {
		return nil, ErrNoCompanyScript
	}

	var state map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &state); err != nil {
		return nil, model.WithClass(model.ErrParse, fmt.Errorf("decode company state: %w", err))
	}
	data, ok := state["pageData"]
	if !ok {
		return nil, model.WithClass(model.ErrParse, errors.New("company state has no pageData"))
	}
	return data, nil
}
