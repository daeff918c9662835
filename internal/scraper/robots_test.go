package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/vetter/internal/fingerprint"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return fetcher
}

func TestRobotsGuard_IsAllowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /admin/
Allow: /admin/public/

User-agent: BadBot
Disallow: /
		`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	fetcher := newTestFetcher(t)
	guard := NewRobotsGuard(fetcher, "GoodBot", slog.Default())
	ctx := context.Background()

	allowed, err := guard.IsAllowed(ctx, ts.URL+"/public-page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected /public-page to be allowed")
	}

	allowed, _ = guard.IsAllowed(ctx, ts.URL+"/admin/secret")
	if allowed {
		t.Errorf("expected /admin/secret to be disallowed")
	}

	allowed, _ = guard.IsAllowed(ctx, ts.URL+"/admin/public/index.html")
	if !allowed {
		t.Errorf("expected /admin/public/index.html to be allowed")
	}

	bad := NewRobotsGuard(fetcher, "BadBot", slog.Default())
	allowed, _ = bad.IsAllowed(ctx, ts.URL+"/public-page")
	if allowed {
		t.Errorf("expected /public-page to be disallowed for BadBot")
	}
}

func TestRobotsGuard_MissingRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	guard := NewRobotsGuard(newTestFetcher(t), "", slog.Default())

	allowed, err := guard.IsAllowed(context.Background(), ts.URL+"/anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected missing robots.txt to default to allowed")
	}
}

func TestRobotsGuard_Fetch(t *testing.T) {
	var robotsHits, pageHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		robotsHits.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /c/\n"))
	})
	mux.HandleFunc("/pic/", func(w http.ResponseWriter, r *http.Request) {
		pageHits.Add(1)
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/c/", func(w http.ResponseWriter, r *http.Request) {
		pageHits.Add(1)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	guard := NewRobotsGuard(newTestFetcher(t), "", nil)
	ctx := context.Background()

	if guard.Name() != BackendDirect {
		t.Errorf("expected guard to report wrapped backend name, got %s", guard.Name())
	}

	res, err := guard.Fetch(ctx, ts.URL+"/pic/acme/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Body) != "<html></html>" {
		t.Errorf("unexpected body %q", res.Body)
	}

	_, err = guard.Fetch(ctx, ts.URL+"/c/acme/1")
	if !errors.Is(err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %v", err)
	}

	if robotsHits.Load() != 1 {
		t.Errorf("expected robots.txt to be fetched once, got %d", robotsHits.Load())
	}
	if pageHits.Load() != 1 {
		t.Errorf("expected only the allowed page to be fetched, got %d", pageHits.Load())
	}
}
