// Package model holds the records shared by discovery, enrichment, storage and
// reporting.
package model

// Candidate is a supplier lead returned by discovery.
type Candidate struct {
	BusinessName string            `json:"business_name"`
	URL          string            `json:"url"`
	Description  string            `json:"description"`
	Metadata     CandidateMetadata `json:"metadata"`
}

// CandidateMetadata carries the search context a candidate was found in.
type CandidateMetadata struct {
	Location  string   `json:"location"`
	Sitelinks []string `json:"sitelinks"`
}
