// Package pipeline runs discovery followed by enrichment and exposes both
// stages as JSON tools for an external orchestrator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/vetter/internal/config"
	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/storage"
	"github.com/google/uuid"
)

// DefaultMaxPages is used when a request leaves MaxPages unset.
const DefaultMaxPages = 1

// Discoverer finds candidates for a topic.
type Discoverer interface {
	Discover(ctx context.Context, topic, country string, queries []string, maxPages int) ([]model.Candidate, error)
}

// Aggregator enriches candidates.
type Aggregator interface {
	Aggregate(ctx context.Context, candidates []model.Candidate) (*model.AggregateResult, error)
}

// Config wires a Pipeline.
type Config struct {
	Discoverer Discoverer
	Aggregator Aggregator
	// Storage persists every run when set.
	Storage storage.Backend
	Logger  *slog.Logger
}

// Pipeline orchestrates the two stages: search-based discovery and
// enrichment of every discovered candidate.
type Pipeline struct {
	discoverer Discoverer
	aggregator Aggregator
	storage    storage.Backend
	logger     *slog.Logger
}

// Request describes one run.
type Request struct {
	Topic   string   `json:"topic"`
	Country string   `json:"country"`
	Queries []string `json:"queries,omitempty"`
	// MaxPages bounds the result pages fetched per query.
	MaxPages int `json:"max_pages,omitempty"`
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Discoverer == nil {
		return nil, errors.New("pipeline: discoverer is nil")
	}
	if cfg.Aggregator == nil {
		return nil, errors.New("pipeline: aggregator is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		discoverer: cfg.Discoverer,
		aggregator: cfg.Aggregator,
		storage:    cfg.Storage,
		logger:     cfg.Logger,
	}, nil
}

// DefaultQueries derives search queries from the topic when a caller gives
// none.
func DefaultQueries(topic, country string) []string {
	return []string{
		fmt.Sprintf("%s authorized distributors %s", topic, country),
		fmt.Sprintf("%s verified suppliers %s", topic, country),
		fmt.Sprintf("buy %s wholesale %s", topic, country),
	}
}

// normalize validates the inputs and fills defaults.
func (req *Request) normalize() error {
	in := config.Inputs{Topic: req.Topic, Country: req.Country}
	if err := in.Validate(); err != nil {
		return err
	}
	req.Topic, req.Country = in.Topic, in.Country
	if len(req.Queries) == 0 {
		req.Queries = DefaultQueries(req.Topic, req.Country)
	}
	if req.MaxPages < 1 {
		req.MaxPages = DefaultMaxPages
	}
	return nil
}

// Run discovers candidates, enriches them and stores the run. A cancelled run
// is still stored with whatever was gathered, and its error is returned with
// it.
func (p *Pipeline) Run(ctx context.Context, req Request) (*storage.Run, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	start := time.Now()
	run := &storage.Run{
		ID:        uuid.New().String(),
		Topic:     req.Topic,
		Country:   req.Country,
		Queries:   req.Queries,
		CreatedAt: start.UTC(),
	}
	log := p.logger.With("run", run.ID, "topic", req.Topic, "country", req.Country)
	log.Info("starting run", "queries", len(req.Queries), "max_pages", req.MaxPages)

	candidates, err := p.discoverer.Discover(ctx, req.Topic, req.Country, req.Queries, req.MaxPages)
	run.Candidates = candidates
	if err == nil {
		run.Result, err = p.aggregator.Aggregate(ctx, candidates)
	}
	run.Duration = time.Since(start)
	if err != nil {
		run.Error = err.Error()
		log.Error("run stopped early", "err", err, "candidates", len(candidates))
	} else {
		log.Info("run complete", "candidates", len(candidates), "duration", run.Duration)
	}

	if p.storage != nil {
		// The run context may be done; saving uses its own deadline.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if saveErr := p.storage.Save(saveCtx, run); saveErr != nil {
			return run, errors.Join(err, fmt.Errorf("pipeline: save run: %w", saveErr))
		}
	}
	return run, err
}
