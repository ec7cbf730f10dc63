package analysis

import (
	"strings"
	"testing"

	"vitalis/internal/eval"
	"vitalis/internal/knowledge"
)

func sampleResult() eval.Result {
	ref := &knowledge.BiomarkerReference{
		Slug: "tsh", Name: "TSH", Unit: "mIU/L",
		OptimalMin: 1.0, OptimalMax: 2.2, LabMin: 0.4, LabMax: 4.0,
		ClinicalInsight: "Primary thyroid axis signal.",
	}
	value := 2.0
	return eval.Result{
		Biomarkers: []eval.BiomarkerEvaluation{
			{Slug: "tsh", Value: 5.0, Status: eval.StatusAbnormal,
				Message: "TSH 5.00 mIU/L is outside the lab range [0.40, 4.00]", Reference: ref},
			{Slug: "glucosa", Value: 90, Status: eval.StatusOptimal, Message: "within optimal"},
		},
		Metrics: []eval.MetricCalculation{
			{Slug: "ldl_hdl_ratio", Name: "LDL/HDL ratio", Formula: "{ldl} / {hdl}",
				Value: &value, Status: eval.StatusOptimal, Message: "within target"},
			{Slug: "homa_ir", Name: "HOMA-IR", Formula: "({glucosa} * {insulina}) / 405",
				Error: "missing biomarker value for insulina"},
		},
		Protocols: []eval.TriggeredProtocol{
			{ProtocolDefinition: knowledge.ProtocolDefinition{
				ID: "prot_thyroid_workup", Type: knowledge.ProtocolMedical,
				Title: "Thyroid workup", Dosage: "", Description: "Full thyroid panel follow-up.",
			}},
		},
		Total: 2, Optimal: 1, Abnormal: 1, MetricsCalculated: 1, ProtocolsTriggered: 1,
	}
}

func TestAssembleCriticalAlerts(t *testing.T) {
	la := Assemble(sampleResult())
	if len(la.CriticalAlerts) != 1 {
		t.Fatalf("expected 1 critical alert, got %d", len(la.CriticalAlerts))
	}
	alert := la.CriticalAlerts[0]
	if !strings.Contains(alert, "tsh") || !strings.Contains(alert, "5.00") {
		t.Errorf("alert should carry slug and value, got %q", alert)
	}
}

func TestAssembleNoAlertsWhenNothingAbnormal(t *testing.T) {
	res := eval.Result{
		Biomarkers: []eval.BiomarkerEvaluation{
			{Slug: "glucosa", Value: 90, Status: eval.StatusOptimal},
		},
		Total: 1, Optimal: 1,
	}
	la := Assemble(res)
	if len(la.CriticalAlerts) != 0 {
		t.Fatalf("expected no alerts, got %v", la.CriticalAlerts)
	}
}

func TestRenderGroundingDocumentEmptyOnZeroBiomarkers(t *testing.T) {
	if got := RenderGroundingDocument(LogicalAnalysis{}); got != "" {
		t.Fatalf("zero biomarkers should render empty, got %q", got)
	}
}

func TestRenderGroundingDocumentContent(t *testing.T) {
	doc := RenderGroundingDocument(Assemble(sampleResult()))

	for _, want := range []string{
		"tsh",                          // biomarker present
		"LDL/HDL ratio",                // calculable metric present
		"not calculable",               // null metric surfaced with its error
		"Thyroid workup",               // triggered protocol present
		"Do not invent protocols",      // authoritative-protocols instruction
		"2 biomarkers evaluated",       // summary counts
		"ALERT",                        // critical alerts section content
		"Primary thyroid axis signal.", // clinical insight carried through
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("rendered document missing %q\n---\n%s", want, doc)
		}
	}
}
