// Package enrich attaches domain age, review reputation and firmographic data
// to discovered candidates.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/vetter/internal/metrics"
	"github.com/FranksOps/vetter/internal/model"
	"golang.org/x/sync/errgroup"
)

// Signal names used in logs and metrics.
const (
	SignalDomainAge    = "domain_age"
	SignalReviews      = "trustpilot_reviews"
	SignalFirmographic = "company_data"
)

// fallbackKey identifies a candidate that has nothing better.
const fallbackKey = "N/A"

// Config configures an Aggregator.
type Config struct {
	DomainAge    DomainAgeSource
	Reviews      ReviewSource
	Firmographic FirmographicSource
	// Concurrency is the number of candidates processed at once. Values below
	// 2 process candidates one by one.
	Concurrency int
	Logger      *slog.Logger
}

// Aggregator runs the three enrichment lookups for every candidate.
type Aggregator struct {
	domainAge    DomainAgeSource
	reviews      ReviewSource
	firmographic FirmographicSource
	concurrency  int
	logger       *slog.Logger
}

// NewAggregator validates cfg and returns an Aggregator.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.DomainAge == nil || cfg.Reviews == nil || cfg.Firmographic == nil {
		return nil, fmt.Errorf("enrich: all three lookups are required: %w", model.ErrConfiguration)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{
		domainAge:    cfg.DomainAge,
		reviews:      cfg.Reviews,
		firmographic: cfg.Firmographic,
		concurrency:  cfg.Concurrency,
		logger:       cfg.Logger,
	}, nil
}

// outcome is everything one candidate contributes to the result.
type outcome struct {
	urlKey   string
	key      string
	age      model.DomainAge
	review   model.ReviewRecord
	company  model.CompanyRecord
	complete bool
}

func (o *outcome) fail(err error) {
	msg := err.Error()
	o.age = model.DomainAgeError(err)
	o.review = model.ReviewError(msg)
	o.company = model.CompanyError(msg)
	o.complete = true
}

// Aggregate enriches candidates and merges the outcomes into one result.
// Every candidate gets an entry in all three mappings; lookup failures are
// stored as error values. Candidates sharing a key overwrite each other in
// input order.
//
// When ctx is cancelled no further candidates are started. Candidates whose
// lookups were cut short are left out, and the partial result is returned with
// the context error.
func (a *Aggregator) Aggregate(ctx context.Context, candidates []model.Candidate) (*model.AggregateResult, error) {
	outcomes := make([]outcome, len(candidates))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = a.process(ctx, candidates[i])
			return nil
		})
	}
	_ = g.Wait()

	result := model.NewAggregateResult()
	for _, o := range outcomes {
		if !o.complete {
			continue
		}
		result.DomainAge[o.urlKey] = o.age
		result.TrustpilotReviews[o.key] = o.review
		result.CompanyData[o.key] = o.company
	}
	return result, ctx.Err()
}

func (a *Aggregator) process(ctx context.Context, c model.Candidate) (out outcome) {
	out.urlKey = c.URL
	if out.urlKey == "" {
		out.urlKey = fallbackKey
	}
	out.key = out.urlKey

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("candidate panicked", "url", c.URL, "panic", r)
			out.fail(fmt.Errorf("panic: %v", r))
		}
	}()

	id, err := DeriveIdentity(c.URL)
	if err != nil {
		a.logger.Warn("skipping candidate lookups", "url", c.URL, "err", err)
		out.fail(err)
		return out
	}
	out.key = id.BusinessKey

	log := a.logger.With("business", id.BusinessKey)
	log.Info("enriching candidate", "url", c.URL, "domain", id.MainDomain)

	cut := false
	check := func(signal string, err error) bool {
		metrics.RecordSignal(signal, err != nil)
		if err == nil {
			return false
		}
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			cut = true
		}
		log.Warn("lookup failed", "signal", signal, "err", err)
		return true
	}

	years, err := a.domainAge.DomainAge(ctx, id.Host)
	if check(SignalDomainAge, err) {
		out.age = model.DomainAgeError(err)
	} else {
		out.age = model.DomainAge{Years: years}
	}

	review, err := a.reviews.Reviews(ctx, id.BusinessKey)
	if check(SignalReviews, err) {
		out.review = model.ReviewError(recordMessage(err))
	} else {
		out.review = review
	}

	data, err := a.firmographic.Company(ctx, id.BusinessKey)
	if check(SignalFirmographic, err) {
		out.company = model.CompanyError(recordMessage(err))
	} else {
		out.company = model.CompanyRecord{Data: data}
	}

	out.complete = !cut
	return out
}
