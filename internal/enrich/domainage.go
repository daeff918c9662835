package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/FranksOps/vetter/internal/metrics"
	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/pkg/httpclient"
	"github.com/FranksOps/vetter/pkg/ratelimit"
)

// DefaultAPIVoidURL is the APIVoid domain age endpoint.
const DefaultAPIVoidURL = "https://endpoint.apivoid.com/domainage/v1/pay-as-you-go/"

const backendAPIVoid = "apivoid"

// DomainAgeSource looks up how old a domain is, in years.
type DomainAgeSource interface {
	DomainAge(ctx context.Context, host string) (float64, error)
}

// APIVoidConfig configures the APIVoid client.
type APIVoidConfig struct {
	APIKey   string
	Endpoint string
	HTTP     *httpclient.Client
	// Limiter spaces calls to APIVoid. Nil means unpaced.
	Limiter *ratelimit.Limiter
}

// APIVoid is a DomainAgeSource backed by the APIVoid domain age API.
type APIVoid struct {
	cfg APIVoidConfig
}

var _ DomainAgeSource = (*APIVoid)(nil)

type apivoidResponse struct {
	Data *struct {
		DomainAgeInYears *flexNumber `json:"domain_age_in_years"`
	} `json:"data"`
	Error string `json:"error"`
}

// NewAPIVoid validates cfg and returns a client.
func NewAPIVoid(cfg APIVoidConfig) (*APIVoid, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("enrich: apivoid api key is required: %w", model.ErrConfiguration)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultAPIVoidURL
	}
	if cfg.HTTP == nil {
		c, err := httpclient.New(httpclient.Config{MaxRedirects: 5})
		if err != nil {
			return nil, err
		}
		cfg.HTTP = c
	}
	return &APIVoid{cfg: cfg}, nil
}

// DomainAge returns data.domain_age_in_years for host. A missing field or an
// upstream error message is a parse error.
func (a *APIVoid) DomainAge(ctx context.Context, host string) (float64, error) {
	if host == "" {
		return 0, errors.New("enrich: domain age host cannot be empty")
	}
	if err := a.cfg.Limiter.Wait(ctx); err != nil {
		return 0, err
	}

	q := url.Values{}
	q.Set("key", a.cfg.APIKey)
	q.Set("host", host)
	start := time.Now()
	var out apivoidResponse
	err := a.cfg.HTTP.GetJSON(ctx, a.cfg.Endpoint, q, nil, &out)
	if err == nil {
		err = out.check()
	}
	metrics.RecordCall(backendAPIVoid, start, err)
	if err != nil {
		return 0, model.Classify(fmt.Errorf("apivoid %s: %w", host, err))
	}
	return float64(*out.Data.DomainAgeInYears), nil
}

func (r *apivoidResponse) check() error {
	if r.Error != "" {
		return model.WithClass(model.ErrParse, errors.New(r.Error))
	}
	if r.Data == nil || r.Data.DomainAgeInYears == nil {
		return model.WithClass(model.ErrParse, errors.New("response has no data.domain_age_in_years"))
	}
	return nil
}
