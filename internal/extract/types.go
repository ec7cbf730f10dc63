// Package extract turns structured medical-document data into canonical
// biomarker observations. It maps free-form parameter names onto knowledge
// base slugs and parses their values; anything it cannot match or parse is
// skipped, never defaulted.
package extract

import "time"

// Document is the structured form of one ingested medical document, as
// produced by the upstream extraction pipeline.
type Document struct {
	ID       string     `json:"id"`
	ExamDate *time.Time `json:"exam_date,omitempty"`
	Modules  []Module   `json:"modules"`
}

// Module groups related parameters within a document (e.g. "Hematology").
type Module struct {
	Name       string      `json:"name"`
	Category   string      `json:"category,omitempty"`
	Status     string      `json:"status,omitempty"`
	Summary    string      `json:"summary,omitempty"`
	Parameters []Parameter `json:"parameters"`
}

// Parameter is one named observation inside a module. Value is kept as the
// raw string from the source document; parsing happens during extraction.
type Parameter struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Unit           string `json:"unit,omitempty"`
	ReferenceRange string `json:"reference_range,omitempty"`
	Status         string `json:"status,omitempty"`
}

// BiomarkerValue is a single canonical observation: one slug, one numeric
// value, with provenance. Multiple observations of the same slug across
// documents are collapsed by Dedupe before evaluation.
type BiomarkerValue struct {
	Slug       string     `json:"slug"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	DocumentID string     `json:"document_id,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// Result bundles extracted values with a diagnostic list of parameter names
// that matched no canonical slug or carried no parseable value. The
// diagnostics are informational only; an empty Values list is a valid
// "no usable data" outcome, not an error.
type Result struct {
	Values    []BiomarkerValue `json:"values"`
	Unmatched []string         `json:"unmatched,omitempty"`
}
