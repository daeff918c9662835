package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/FranksOps/vetter/internal/model"
)

func TestParseCompanyPage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{
			name: "app root state",
			body: `<html><script id="app-root-state" type="application/json">{"pageData":{"name":"Acme"},"other":1}</script></html>`,
			want: `{"name":"Acme"}`,
		},
		{
			name: "ng state fallback",
			body: `<html><script id="ng-state">{"pageData":{"employees":120}}</script></html>`,
			want: `{"employees":120}`,
		},
		{
			name: "empty app root falls back",
			body: `<script id="app-root-state"></script><script id="ng-state">{"pageData":[1]}</script>`,
			want: `[1]`,
		},
		{
			name:    "no script",
			body:    `<html><body>Please verify you are human</body></html>`,
			wantErr: ErrNoCompanyScript,
		},
		{
			name:    "no page data",
			body:    `<script id="ng-state">{"state":{}}</script>`,
			wantErr: model.ErrParse,
		},
		{
			name:    "bad json",
			body:    `<script id="ng-state">{not json</script>`,
			wantErr: model.ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCompanyPage([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestZoomInfo_Company(t *testing.T) {
	search := &fakeSearch{links: map[string][]string{
		"acme site:zoominfo.com": {
			"https://www.linkedin.com/company/acme",
			"https://www.zoominfo.com/c/unrelated-corp/1",
			"https://www.zoominfo.com/c/acme-inc/2",
		},
	}}
	backend := &fakeBackend{bodies: map[string]string{
		"https://www.zoominfo.com/c/unrelated-corp/1": `<script id="ng-state">{"pageData":{"name":"Unrelated"}}</script>`,
		"https://www.zoominfo.com/c/acme-inc/2":       `<script id="ng-state">{"pageData":{"name":"Acme"}}</script>`,
	}}

	data, err := NewZoomInfo(ZoomInfoConfig{Search: search, Backend: backend}).Company(context.Background(), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"name":"Unrelated"}` {
		t.Errorf("expected the first zoominfo link without a key check, got %s", data)
	}

	data, err = NewZoomInfo(ZoomInfoConfig{Search: search, Backend: backend, RequireKeyInLink: true}).Company(context.Background(), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"name":"Acme"}` {
		t.Errorf("expected the key-matching link, got %s", data)
	}
}

func TestZoomInfo_Errors(t *testing.T) {
	search := &fakeSearch{links: map[string][]string{
		"acme site:zoominfo.com":    {"https://www.zoominfo.com/c/acme/1"},
		"blocked site:zoominfo.com": {"https://www.zoominfo.com/c/blocked/1"},
	}}
	backend := &fakeBackend{bodies: map[string]string{
		"https://www.zoominfo.com/c/acme/1": `<html><title>Access denied</title></html>`,
	}}
	z := NewZoomInfo(ZoomInfoConfig{Search: search, Backend: backend})
	ctx := context.Background()

	_, err := z.Company(ctx, "acme")
	if got := recordMessage(err); got != "Scraping failed: No company data script found." {
		t.Errorf("unexpected message %q", got)
	}
	if !errors.Is(err, model.ErrParse) {
		t.Errorf("expected parse class, got %v", err)
	}

	_, err = z.Company(ctx, "blocked")
	if got := recordMessage(err); got != "Scraping failed: unexpected status 403" {
		t.Errorf("unexpected message %q", got)
	}

	_, err = z.Company(ctx, "nothing")
	if got := recordMessage(err); got != "No ZoomInfo page found for nothing." {
		t.Errorf("unexpected message %q", got)
	}
}
