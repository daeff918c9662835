// Package report summarises stored enrichment runs. It counts outcomes; it
// does not rank suppliers or write prose.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"sort"
	"text/template"
	"time"

	"github.com/FranksOps/vetter/internal/storage"
)

// SignalStats counts the outcomes of one enrichment signal.
type SignalStats struct {
	Succeeded int
	Failed    int
}

// Total is the number of entries for the signal.
func (s SignalStats) Total() int { return s.Succeeded + s.Failed }

// Summary contains aggregated metrics about one or more enrichment runs.
type Summary struct {
	Runs          int
	FailedRuns    int
	Candidates    int
	Topics        []string
	DomainAge     SignalStats
	Reviews       SignalStats
	Firmographics SignalStats
	// MeanDomainAge is the mean over successful domain age lookups.
	MeanDomainAge float64
	// Rated lists business keys whose review record carries a rating.
	Rated     []string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// GenerateSummary processes stored runs into summary metrics.
func GenerateSummary(runs []*storage.Run) Summary {
	var s Summary
	if len(runs) == 0 {
		return s
	}

	s.StartTime = runs[0].CreatedAt
	s.EndTime = runs[0].CreatedAt

	topics := map[string]bool{}
	rated := map[string]bool{}
	var ageSum float64

	for _, r := range runs {
		s.Runs++
		s.Candidates += len(r.Candidates)
		s.Duration += r.Duration
		if r.Error != "" {
			s.FailedRuns++
		}
		topics[r.Topic] = true

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}

		if r.Result == nil {
			continue
		}
		for _, age := range r.Result.DomainAge {
			if age.IsError() {
				s.DomainAge.Failed++
				continue
			}
			s.DomainAge.Succeeded++
			ageSum += age.Years
		}
		for key, rec := range r.Result.TrustpilotReviews {
			if rec.IsError() {
				s.Reviews.Failed++
				continue
			}
			s.Reviews.Succeeded++
			if len(rec.AggregateRating) > 0 {
				rated[key] = true
			}
		}
		for _, rec := range r.Result.CompanyData {
			if rec.IsError() {
				s.Firmographics.Failed++
			} else {
				s.Firmographics.Succeeded++
			}
		}
	}

	if s.DomainAge.Succeeded > 0 {
		s.MeanDomainAge = ageSum / float64(s.DomainAge.Succeeded)
	}
	s.Topics = sortedKeys(topics)
	s.Rated = sortedKeys(rated)
	return s
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

const textTmpl = `Vetter Enrichment Summary
-------------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Run Time:      {{.Duration}}
Runs:          {{.Runs}} ({{.FailedRuns}} stopped early)
Topics:        {{range $i, $t := .Topics}}{{if $i}}, {{end}}{{$t}}{{else}}None{{end}}
Candidates:    {{.Candidates}}

Signals (ok / failed):
  Domain age:    {{.DomainAge.Succeeded}} / {{.DomainAge.Failed}}
  Reviews:       {{.Reviews.Succeeded}} / {{.Reviews.Failed}}
  Firmographics: {{.Firmographics.Succeeded}} / {{.Firmographics.Failed}}

Mean domain age: {{printf "%.1f" .MeanDomainAge}} years

Rated businesses: {{len .Rated}}
{{- range .Rated}}
  {{.}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}

	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Vetter Enrichment Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Vetter Enrichment Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>
  <p><strong>Topics:</strong> {{range $i, $t := .Topics}}{{if $i}}, {{end}}{{$t}}{{else}}None{{end}}</p>

  <div class="stat-card">
    <div>Runs</div>
    <div class="stat-val">{{.Runs}}</div>
  </div>
  <div class="stat-card">
    <div>Candidates</div>
    <div class="stat-val">{{.Candidates}}</div>
  </div>
  <div class="stat-card">
    <div>Mean Domain Age</div>
    <div class="stat-val">{{printf "%.1f" .MeanDomainAge}}</div>
  </div>
  <div class="stat-card">
    <div>Stopped Early</div>
    <div class="stat-val" style="color: {{if gt .FailedRuns 0}}red{{else}}green{{end}};">{{.FailedRuns}}</div>
  </div>

  <h3>Signals</h3>
  <table>
    <tr><th>Signal</th><th>OK</th><th>Failed</th></tr>
    <tr><td>Domain age</td><td>{{.DomainAge.Succeeded}}</td><td>{{.DomainAge.Failed}}</td></tr>
    <tr><td>Reviews</td><td>{{.Reviews.Succeeded}}</td><td>{{.Reviews.Failed}}</td></tr>
    <tr><td>Firmographics</td><td>{{.Firmographics.Succeeded}}</td><td>{{.Firmographics.Failed}}</td></tr>
  </table>

  <h3>Rated Businesses</h3>
  <table>
    <tr><th>Business</th></tr>
    {{- range .Rated}}
    <tr><td>{{.}}</td></tr>
    {{- else}}
    <tr><td>None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a basic HTML report to the provided writer. Business keys
// come from scraped URLs, so the output is escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}

	return nil
}
