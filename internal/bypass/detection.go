// Package bypass recognises bot-protection challenge pages so a blocked fetch is
// reported as a failure instead of being parsed as company or review data.
package bypass

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/FranksOps/vetter/internal/model"
)

// Signature describes how one bot-protection vendor marks a blocked response.
type Signature struct {
	Source string
	// Statuses the header and body checks apply to. Empty means any 4xx or 5xx.
	Statuses []int
	// Servers are lowercase substrings of the Server header.
	Servers []string
	// Headers whose mere presence marks a block.
	Headers []string
	// Markers are body fragments; every fragment of one entry must appear.
	Markers [][]string
	// MarkersAnyStatus also checks Markers on non-error statuses, for vendors
	// that serve challenges with 200.
	MarkersAnyStatus bool
}

// DefaultSignatures covers the vendors seen in front of review and company
// directory sites.
var DefaultSignatures = []Signature{
	{
		Source:   "Cloudflare",
		Statuses: []int{403, 503},
		Servers:  []string{"cloudflare"},
		Markers: [][]string{
			{"cf-browser-verification"},
			{"cloudflare-nginx"},
			{"cf-turnstile"},
			{"Attention Required! | Cloudflare"},
			{"<title>Just a moment...</title>"},
		},
	},
	{
		Source:   "Akamai",
		Statuses: []int{403},
		Servers:  []string{"akamai"},
		Markers:  [][]string{{"Access Denied", "Reference #"}},
	},
	{
		Source:   "DataDome",
		Statuses: []int{403},
		Servers:  []string{"datadome"},
		Headers:  []string{"X-DataDome", "X-DataDome-Response"},
		Markers:  [][]string{{"geo.captcha-delivery.com"}, {"datadome"}},
	},
	{
		// ZoomInfo's "Press & Hold" page.
		Source:           "PerimeterX",
		Statuses:         []int{403},
		Headers:          []string{"X-Px-Captcha"},
		Markers:          [][]string{{"client.perimeterx.net"}, {"px-captcha"}, {"_pxBlock"}},
		MarkersAnyStatus: true,
	},
	{
		Source:           "Incapsula",
		Headers:          []string{"X-Iinfo"},
		Markers:          [][]string{{"_Incapsula_Resource"}, {"Incapsula incident ID"}},
		MarkersAnyStatus: true,
	},
}

// BlockedError reports a fetch that came back as a challenge page.
type BlockedError struct {
	URL        string
	Source     string
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by %s (status %d) fetching %s", e.Source, e.StatusCode, e.URL)
}

func (e *BlockedError) Unwrap() error { return model.ErrTransport }

// Match reports whether res carries this signature.
func (s Signature) Match(res *model.ScrapeResult) bool {
	if s.appliesTo(res.StatusCode) {
		server := strings.ToLower(header(res.Headers, "Server"))
		for _, sv := range s.Servers {
			if strings.Contains(server, sv) {
				return true
			}
		}
		for _, h := range s.Headers {
			if header(res.Headers, h) != "" {
				return true
			}
		}
	} else if !s.MarkersAnyStatus {
		return false
	}

	for _, fragments := range s.Markers {
		if containsAll(res.Body, fragments) {
			return true
		}
	}
	return false
}

func (s Signature) appliesTo(status int) bool {
	if len(s.Statuses) == 0 {
		return status >= 400
	}
	return slices.Contains(s.Statuses, status)
}

// Analyze records on res the first signature it matches and reports whether
// one did.
func Analyze(res *model.ScrapeResult, sigs []Signature) bool {
	if res == nil {
		return false
	}
	res.DetectedBot, res.DetectionSrc = false, ""
	for _, s := range sigs {
		if s.Match(res) {
			res.DetectedBot, res.DetectionSrc = true, s.Source
			return true
		}
	}
	return false
}

// Check returns a *BlockedError when res was flagged by Analyze.
func Check(res *model.ScrapeResult) error {
	if res == nil || !res.DetectedBot {
		return nil
	}
	return &BlockedError{URL: res.URL, Source: res.DetectionSrc, StatusCode: res.StatusCode}
}

func containsAll(body []byte, fragments []string) bool {
	for _, f := range fragments {
		if !bytes.Contains(body, []byte(f)) {
			return false
		}
	}
	return len(fragments) > 0
}

// header looks key up case-insensitively; Scrapfly returns lowercase names.
func header(headers map[string][]string, key string) string {
	if vals := headers[key]; len(vals) > 0 {
		return vals[0]
	}
	for k, vals := range headers {
		if strings.EqualFold(k, key) && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}
