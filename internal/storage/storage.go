// Package storage persists enrichment runs.
package storage

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/FranksOps/vetter/internal/model"
)

// Run is one discover-then-aggregate execution.
type Run struct {
	ID         string                 `json:"id"`
	Topic      string                 `json:"topic"`
	Country    string                 `json:"country"`
	Queries    []string               `json:"queries"`
	Candidates []model.Candidate      `json:"candidates"`
	Result     *model.AggregateResult `json:"result"`
	Duration   time.Duration          `json:"duration"`
	CreatedAt  time.Time              `json:"created_at"`
	Error      string                 `json:"error,omitempty"` // non-empty if the run stopped early
}

// Filter allows querying for specific runs. Topic and Country match
// case-insensitively.
type Filter struct {
	Topic   string
	Country string
	Failed  *bool
	Since   *time.Time
	Limit   int
	Offset  int
}

// Backend defines the interface for storing and querying runs.
type Backend interface {
	Save(ctx context.Context, run *Run) error
	Query(ctx context.Context, filter Filter) ([]*Run, error)
	Close() error
}

// Match reports whether r passes every set filter field.
func (f Filter) Match(r *Run) bool {
	if f.Topic != "" && !strings.EqualFold(r.Topic, f.Topic) {
		return false
	}
	if f.Country != "" && !strings.EqualFold(r.Country, f.Country) {
		return false
	}
	if f.Failed != nil && (r.Error != "") != *f.Failed {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page orders matched runs newest first and applies Offset and Limit. File
// backends use it after filtering in memory.
func (f Filter) Page(runs []*Run) []*Run {
	slices.SortStableFunc(runs, func(a, b *Run) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(runs) {
			return []*Run{}
		}
		runs = runs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(runs) {
		runs = runs[:f.Limit]
	}
	return runs
}
