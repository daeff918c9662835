package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/vetter/internal/model"
)

// Tool is an operation an orchestrator can call with JSON arguments. The
// output is JSON text.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input json.RawMessage) (string, error)
}

// DiscoverTool exposes discovery.
type DiscoverTool struct {
	Discoverer Discoverer
}

var _ Tool = (*DiscoverTool)(nil)

func (t *DiscoverTool) Name() string { return "discover_suppliers" }

func (t *DiscoverTool) Description() string {
	return "Search the web for supplier websites for a topic and country. " +
		"Arguments: topic, country, optional queries and max_pages. Returns a JSON array of candidates."
}

// Call decodes a Request, fills defaults and returns the candidates.
func (t *DiscoverTool) Call(ctx context.Context, input json.RawMessage) (string, error) {
	var req Request
	if err := json.Unmarshal(input, &req); err != nil {
		return "", fmt.Errorf("pipeline: decode %s arguments: %w", t.Name(), err)
	}
	if err := req.normalize(); err != nil {
		return "", err
	}

	candidates, err := t.Discoverer.Discover(ctx, req.Topic, req.Country, req.Queries, req.MaxPages)
	if err != nil {
		return "", err
	}
	if candidates == nil {
		candidates = []model.Candidate{}
	}
	out, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("pipeline: encode candidates: %w", err)
	}
	return string(out), nil
}

// AggregateTool exposes enrichment.
type AggregateTool struct {
	Aggregator Aggregator
}

var _ Tool = (*AggregateTool)(nil)

func (t *AggregateTool) Name() string { return "enrich_suppliers" }

func (t *AggregateTool) Description() string {
	return "Look up domain age, Trustpilot reviews and ZoomInfo company data for supplier candidates. " +
		`Arguments: {"suppliers": [...]} or a bare array of candidates. Returns the aggregate result as JSON.`
}

// Call accepts the candidate list bare or under "suppliers".
func (t *AggregateTool) Call(ctx context.Context, input json.RawMessage) (string, error) {
	var candidates []model.Candidate
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &candidates); err != nil {
			return "", fmt.Errorf("pipeline: decode %s arguments: %w", t.Name(), err)
		}
	} else {
		var args struct {
			Suppliers []model.Candidate `json:"suppliers"`
		}
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return "", fmt.Errorf("pipeline: decode %s arguments: %w", t.Name(), err)
		}
		candidates = args.Suppliers
	}

	result, err := t.Aggregator.Aggregate(ctx, candidates)
	if err != nil {
		return "", err
	}
	return result.JSON()
}

// Tools returns both stages as tools, in pipeline order.
func Tools(d Discoverer, a Aggregator) []Tool {
	return []Tool{&DiscoverTool{Discoverer: d}, &AggregateTool{Aggregator: a}}
}

// FindTool returns the tool called name.
func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
