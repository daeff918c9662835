package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/FranksOps/vetter/internal/model"
)

func newAPIVoidServer(t *testing.T) *APIVoid {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "void-key" {
			t.Errorf("missing api key")
		}
		switch r.URL.Query().Get("host") {
		case "www.acme-widgets.com":
			_, _ = w.Write([]byte(`{"data": {"host": "acme-widgets.com", "domain_age_in_years": 7}}`))
		case "string.com":
			_, _ = w.Write([]byte(`{"data": {"domain_age_in_years": "12.5"}}`))
		case "nodata.com":
			_, _ = w.Write([]byte(`{"data": {}}`))
		case "quota.com":
			_, _ = w.Write([]byte(`{"error": "Not enough credits"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(ts.Close)

	a, err := NewAPIVoid(APIVoidConfig{APIKey: "void-key", Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return a
}

func TestAPIVoid_DomainAge(t *testing.T) {
	a := newAPIVoidServer(t)
	ctx := context.Background()

	years, err := a.DomainAge(ctx, "www.acme-widgets.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if years != 7 {
		t.Errorf("expected 7, got %v", years)
	}

	years, err = a.DomainAge(ctx, "string.com")
	if err != nil || years != 12.5 {
		t.Errorf("expected numeric string to parse, got %v, %v", years, err)
	}
}

func TestAPIVoid_Errors(t *testing.T) {
	a := newAPIVoidServer(t)
	ctx := context.Background()

	if _, err := a.DomainAge(ctx, "nodata.com"); !errors.Is(err, model.ErrParse) {
		t.Errorf("expected parse error for missing field, got %v", err)
	}
	if _, err := a.DomainAge(ctx, "quota.com"); !errors.Is(err, model.ErrParse) {
		t.Errorf("expected parse error for upstream error message, got %v", err)
	}
	if _, err := a.DomainAge(ctx, "down.com"); !errors.Is(err, model.ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
	if _, err := a.DomainAge(ctx, ""); err == nil {
		t.Error("expected error for empty host")
	}
}

func TestNewAPIVoid_RequiresKey(t *testing.T) {
	if _, err := NewAPIVoid(APIVoidConfig{}); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
