// Package eval implements the deterministic evaluation engine: it classifies
// biomarker values against reference ranges, computes derived metrics from
// formulas, and resolves which protocols are triggered. It is a pure
// function of the value map and the knowledge snapshot.
package eval

import "vitalis/internal/knowledge"

// Status classifies a biomarker or metric value.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusSuboptimal Status = "suboptimal"
	StatusAbnormal   Status = "abnormal"
	StatusUnknown    Status = "unknown"
)

// BiomarkerEvaluation is the classification of one observed biomarker value,
// with a snapshot of the matched reference.
type BiomarkerEvaluation struct {
	Slug      string                        `json:"slug"`
	Value     float64                       `json:"value"`
	Status    Status                        `json:"status"`
	Message   string                        `json:"message"`
	Reference *knowledge.BiomarkerReference `json:"reference,omitempty"`
}

// MetricCalculation is the result of evaluating one metric formula. Value is
// nil with a non-empty Error when any required input biomarker is absent or
// the expression fails to evaluate.
type MetricCalculation struct {
	Slug    string   `json:"slug"`
	Name    string   `json:"name"`
	Formula string   `json:"formula"`
	Value   *float64 `json:"value"`
	Status  Status   `json:"status"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// TriggeredProtocol is a protocol whose trigger condition evaluated true
// against the available biomarker values.
type TriggeredProtocol struct {
	knowledge.ProtocolDefinition
}

// Result bundles the three evaluation outputs with aggregate counts.
type Result struct {
	Biomarkers []BiomarkerEvaluation `json:"biomarkers"`
	Metrics    []MetricCalculation   `json:"metrics"`
	Protocols  []TriggeredProtocol   `json:"protocols"`

	Total              int `json:"total"`
	Optimal            int `json:"optimal"`
	Suboptimal         int `json:"suboptimal"`
	Abnormal           int `json:"abnormal"`
	MetricsCalculated  int `json:"metrics_calculated"`
	ProtocolsTriggered int `json:"protocols_triggered"`
}
