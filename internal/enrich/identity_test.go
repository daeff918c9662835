package enrich

import "testing"

func TestDeriveIdentity(t *testing.T) {
	tests := []struct {
		url, host, main, key string
	}{
		{"https://www.acme-widgets.com/products", "www.acme-widgets.com", "acme-widgets.com", "acme-widgets"},
		{"http://acme-widgets.com", "acme-widgets.com", "acme-widgets.com", "acme-widgets"},
		{"https://shop.eu.bolt.io:8443/x?y=1", "shop.eu.bolt.io", "bolt.io", "bolt"},
		{"https://www.example.co.uk/page", "www.example.co.uk", "co.uk", "co"},
		{"http://example.co.uk", "example.co.uk", "co.uk", "co"},
		{"HTTPS://WWW.Garmin.COM", "www.garmin.com", "garmin.com", "garmin"},
		{"https://WWW.Acme.com", "www.acme.com", "acme.com", "acme"},
		{"garmin.com/store", "garmin.com", "garmin.com", "garmin"},
		{"http://localhost:8080", "localhost", "localhost", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			id, err := DeriveIdentity(tt.url)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.Host != tt.host || id.MainDomain != tt.main || id.BusinessKey != tt.key {
				t.Errorf("got %+v, want host=%s main=%s key=%s", id, tt.host, tt.main, tt.key)
			}
		})
	}
}

func TestDeriveIdentity_Deterministic(t *testing.T) {
	a, _ := DeriveIdentity("https://www.example.co.uk/page")
	b, _ := DeriveIdentity("http://example.co.uk")
	if a.MainDomain != b.MainDomain || a.BusinessKey != b.BusinessKey {
		t.Errorf("expected identical identity, got %+v and %+v", a, b)
	}
}

func TestDeriveIdentity_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "http://", "http://[::1"} {
		if _, err := DeriveIdentity(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}
