// Package useragent rotates browser User-Agent strings and picks the
// Accept-Language a browser in a given country would send.
package useragent

import (
	"math/rand/v2"
	"strings"
	"sync/atomic"
)

// DefaultPool holds current desktop browser User-Agents. Review and
// firmographic sites serve their full markup to these.
var DefaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36 Edg/140.0.0.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:143.0) Gecko/20100101 Firefox/143.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:143.0) Gecko/20100101 Firefox/143.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.6 Safari/605.1.15",
}

// acceptLanguages maps a proxy exit country to a local browser's
// Accept-Language.
var acceptLanguages = map[string]string{
	"US": "en-US,en;q=0.9",
	"GB": "en-GB,en;q=0.9",
	"CA": "en-CA,en;q=0.9,fr-CA;q=0.8",
	"AU": "en-AU,en;q=0.9",
	"DE": "de-DE,de;q=0.9,en;q=0.8",
	"FR": "fr-FR,fr;q=0.9,en;q=0.8",
	"NL": "nl-NL,nl;q=0.9,en;q=0.8",
}

// LanguageFor returns the Accept-Language for country, falling back to US
// English.
func LanguageFor(country string) string {
	if lang, ok := acceptLanguages[strings.ToUpper(country)]; ok {
		return lang
	}
	return acceptLanguages["US"]
}

// Browser reports the browser family of ua: "chrome", "firefox", "safari", or
// "" when unknown. Chromium derivatives count as chrome.
func Browser(ua string) string {
	switch {
	case strings.Contains(ua, "Firefox/"):
		return "firefox"
	case strings.Contains(ua, "Chrome/"):
		return "chrome"
	case strings.Contains(ua, "Safari/") && strings.Contains(ua, "Version/"):
		return "safari"
	default:
		return ""
	}
}

// Pool is a fixed set of User-Agents. It is safe for concurrent use.
type Pool struct {
	uas  []string
	next atomic.Uint64
}

// NewPool copies uas into a pool. An empty slice uses DefaultPool.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	return &Pool{uas: append([]string(nil), uas...)}
}

// ForBrowser narrows the pool to one browser family so the User-Agent agrees
// with the TLS fingerprint. An unknown family, or one with no match, returns p
// unchanged.
func (p *Pool) ForBrowser(family string) *Pool {
	family = strings.ToLower(family)
	var matched []string
	for _, ua := range p.uas {
		if Browser(ua) == family {
			matched = append(matched, ua)
		}
	}
	if len(matched) == 0 {
		return p
	}
	return &Pool{uas: matched}
}

// Len returns the number of User-Agents in the pool.
func (p *Pool) Len() int { return len(p.uas) }

// Next returns User-Agents round-robin.
func (p *Pool) Next() string {
	if len(p.uas) == 0 {
		return ""
	}
	i := p.next.Add(1) - 1
	return p.uas[i%uint64(len(p.uas))]
}

// Random returns a uniformly chosen User-Agent.
func (p *Pool) Random() string {
	if len(p.uas) == 0 {
		return ""
	}
	return p.uas[rand.IntN(len(p.uas))]
}
