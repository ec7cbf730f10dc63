// Package knowledge holds the curated reference tables the deterministic
// evaluation engine runs against: biomarker references, derived-metric
// definitions, and protocol definitions with trigger conditions. Tables are
// loaded once per workflow run as an immutable Snapshot.
package knowledge

// BiomarkerReference is a canonical knowledge-base entry for one biomarker.
// OptimalMin/Max is the narrower functional range; LabMin/Max is the
// conventional abnormal-range boundary.
type BiomarkerReference struct {
	Slug            string  `yaml:"slug" json:"slug"`
	Name            string  `yaml:"name" json:"name"`
	Unit            string  `yaml:"unit" json:"unit"`
	OptimalMin      float64 `yaml:"optimal_min" json:"optimal_min"`
	OptimalMax      float64 `yaml:"optimal_max" json:"optimal_max"`
	LabMin          float64 `yaml:"lab_min" json:"lab_min"`
	LabMax          float64 `yaml:"lab_max" json:"lab_max"`
	ClinicalInsight string  `yaml:"clinical_insight,omitempty" json:"clinical_insight,omitempty"`
	Metaphor        string  `yaml:"metaphor,omitempty" json:"metaphor,omitempty"`
	SourceRef       string  `yaml:"source_ref,omitempty" json:"source_ref,omitempty"`
}

// MetricDefinition describes a derived metric computed from biomarker values.
// Formula is an arithmetic expression referencing biomarker slugs as {slug}
// placeholders, e.g. "{ldl} / {hdl}".
type MetricDefinition struct {
	Slug        string  `yaml:"slug" json:"slug"`
	Name        string  `yaml:"name" json:"name"`
	Formula     string  `yaml:"formula" json:"formula"`
	TargetMin   float64 `yaml:"target_min" json:"target_min"`
	TargetMax   float64 `yaml:"target_max" json:"target_max"`
	RiskInsight string  `yaml:"risk_insight,omitempty" json:"risk_insight,omitempty"`
}

// ProtocolType categorizes a recommended action.
type ProtocolType string

const (
	ProtocolSupplement ProtocolType = "supplement"
	ProtocolDiet       ProtocolType = "diet"
	ProtocolExercise   ProtocolType = "exercise"
	ProtocolMedical    ProtocolType = "medical"
)

// ProtocolDefinition is a recommended action gated by a boolean trigger
// condition over biomarker slugs, e.g. "vitamina_d3 < 40 or ferritina < 30".
type ProtocolDefinition struct {
	ID               string       `yaml:"id" json:"id"`
	Type             ProtocolType `yaml:"type" json:"type"`
	Title            string       `yaml:"title" json:"title"`
	Description      string       `yaml:"description,omitempty" json:"description,omitempty"`
	Dosage           string       `yaml:"dosage,omitempty" json:"dosage,omitempty"`
	SourceRef        string       `yaml:"source_ref,omitempty" json:"source_ref,omitempty"`
	TriggerCondition string       `yaml:"trigger_condition" json:"trigger_condition"`
}
