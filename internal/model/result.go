package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AggregateResult is the enrichment output for one batch of candidates.
//
// DomainAge is keyed by the candidate URL while TrustpilotReviews and
// CompanyData are keyed by the derived business key.
type AggregateResult struct {
	DomainAge         map[string]DomainAge     `json:"domain_age"`
	TrustpilotReviews map[string]ReviewRecord  `json:"trustpilot_reviews"`
	CompanyData       map[string]CompanyRecord `json:"company_data"`
}

// NewAggregateResult returns a result with all three mappings allocated.
func NewAggregateResult() *AggregateResult {
	return &AggregateResult{
		DomainAge:         make(map[string]DomainAge),
		TrustpilotReviews: make(map[string]ReviewRecord),
		CompanyData:       make(map[string]CompanyRecord),
	}
}

// JSON renders the result as the indented text block handed to the report step.
func (r *AggregateResult) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("model: marshal aggregate result: %w", err)
	}
	return string(data), nil
}

// DomainAge is either a year count or an error marker.
type DomainAge struct {
	Years float64
	Err   string
}

// DomainAgeError builds the error marker stored when a lookup fails.
func DomainAgeError(err error) DomainAge {
	return DomainAge{Err: "Error: " + err.Error()}
}

// IsError reports whether the lookup failed.
func (d DomainAge) IsError() bool { return d.Err != "" }

func (d DomainAge) MarshalJSON() ([]byte, error) {
	if d.Err != "" {
		return json.Marshal(d.Err)
	}
	return json.Marshal(d.Years)
}

func (d *DomainAge) UnmarshalJSON(data []byte) error {
	var years float64
	if err := json.Unmarshal(data, &years); err == nil {
		*d = DomainAge{Years: years}
		return nil
	}
	var msg string
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("model: domain age must be a number or string: %w", err)
	}
	*d = DomainAge{Err: msg}
	return nil
}

// LocalBusinessInfo is the LocalBusiness node of a review page reduced to the
// fields the report uses.
type LocalBusinessInfo struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Address     json.RawMessage `json:"address"`
}

// ReviewRecord is the review-reputation signal for one business. When Error is
// set the record serializes as {"error": ...} only.
type ReviewRecord struct {
	OGTitle           string
	AggregateRating   json.RawMessage
	ReviewCount       *int
	LocalBusinessInfo *LocalBusinessInfo
	Error             string
}

// ReviewError builds an error-only review record.
func ReviewError(msg string) ReviewRecord { return ReviewRecord{Error: msg} }

// IsError reports whether the record carries no review data.
func (r ReviewRecord) IsError() bool { return r.Error != "" }

type reviewWire struct {
	OGTitle           string          `json:"og_title"`
	AggregateRating   json.RawMessage `json:"aggregate_rating"`
	ReviewCount       *int            `json:"review_count"`
	LocalBusinessInfo json.RawMessage `json:"local_business_info"`
}

type errorWire struct {
	Error string `json:"error"`
}

func (r ReviewRecord) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(errorWire{Error: r.Error})
	}
	w := reviewWire{
		OGTitle:           r.OGTitle,
		AggregateRating:   r.AggregateRating,
		ReviewCount:       r.ReviewCount,
		LocalBusinessInfo: json.RawMessage("{}"),
	}
	if len(w.AggregateRating) == 0 {
		w.AggregateRating = json.RawMessage("null")
	}
	if r.LocalBusinessInfo != nil {
		info := *r.LocalBusinessInfo
		if len(info.Address) == 0 {
			info.Address = json.RawMessage("{}")
		}
		data, err := json.Marshal(info)
		if err != nil {
			return nil, err
		}
		w.LocalBusinessInfo = data
	}
	return json.Marshal(w)
}

func (r *ReviewRecord) UnmarshalJSON(data []byte) error {
	if msg, ok := errorOnly(data); ok {
		*r = ReviewRecord{Error: msg}
		return nil
	}
	var w reviewWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("model: decode review record: %w", err)
	}
	out := ReviewRecord{OGTitle: w.OGTitle, ReviewCount: w.ReviewCount}
	if len(w.AggregateRating) > 0 && !bytes.Equal(w.AggregateRating, []byte("null")) {
		out.AggregateRating = w.AggregateRating
	}
	if len(w.LocalBusinessInfo) > 0 && !bytes.Equal(bytes.TrimSpace(w.LocalBusinessInfo), []byte("{}")) {
		var info LocalBusinessInfo
		if err := json.Unmarshal(w.LocalBusinessInfo, &info); err != nil {
			return fmt.Errorf("model: decode local business info: %w", err)
		}
		out.LocalBusinessInfo = &info
	}
	*r = out
	return nil
}

// CompanyRecord is the firmographic payload for one business, kept as the raw
// JSON the source page embedded, or an error.
type CompanyRecord struct {
	Data  json.RawMessage
	Error string
}

// CompanyError builds an error-only company record.
func CompanyError(msg string) CompanyRecord { return CompanyRecord{Error: msg} }

// IsError reports whether the record carries no company data.
func (c CompanyRecord) IsError() bool { return c.Error != "" }

func (c CompanyRecord) MarshalJSON() ([]byte, error) {
	if c.Error != "" {
		return json.Marshal(errorWire{Error: c.Error})
	}
	if len(c.Data) == 0 {
		return []byte("null"), nil
	}
	return c.Data, nil
}

func (c *CompanyRecord) UnmarshalJSON(data []byte) error {
	if msg, ok := errorOnly(data); ok {
		*c = CompanyRecord{Error: msg}
		return nil
	}
	c.Error = ""
	c.Data = append(json.RawMessage(nil), data...)
	return nil
}

// errorOnly detects the {"error": "..."} shape.
func errorOnly(data []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || len(fields) != 1 {
		return "", false
	}
	raw, ok := fields["error"]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", false
	}
	return msg, true
}
