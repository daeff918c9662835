package enrich

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Identity is the domain information derived from a candidate URL.
type Identity struct {
	// Host is the URL host without port, used for the domain-age lookup.
	Host string
	// MainDomain is Host reduced to its last two labels.
	MainDomain string
	// BusinessKey is the first label of MainDomain. It keys the review and
	// company mappings.
	BusinessKey string
}

// DeriveIdentity parses rawURL and derives its main domain and business key.
// The host is lowercased first, so https://WWW.Acme.com yields key "acme".
// Multi-part public suffixes are not special-cased: www.example.co.uk yields
// main domain co.uk and key "co".
func DeriveIdentity(rawURL string) (Identity, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return Identity{}, errors.New("enrich: candidate has no url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("enrich: invalid url %q: %w", rawURL, err)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return Identity{}, fmt.Errorf("enrich: url %q has no host", rawURL)
	}

	labels := strings.Split(host, ".")
	main := host
	if len(labels) > 2 {
		main = strings.Join(labels[len(labels)-2:], ".")
	}

	key, _, _ := strings.Cut(main, ".")
	return Identity{Host: host, MainDomain: main, BusinessKey: key}, nil
}
