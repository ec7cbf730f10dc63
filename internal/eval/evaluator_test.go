package eval

import (
	"testing"

	"vitalis/internal/knowledge"
)

// testSnapshot builds a small snapshot through the YAML loader so the slug
// index is populated the same way production snapshots are.
func testSnapshot(t *testing.T) *knowledge.Snapshot {
	t.Helper()
	snap, err := knowledge.LoadSnapshot([]byte(`
biomarkers:
  - slug: tsh
    name: TSH
    unit: mIU/L
    optimal_min: 1.0
    optimal_max: 2.2
    lab_min: 0.4
    lab_max: 4.0
  - slug: ldl
    name: LDL cholesterol
    unit: mg/dL
    optimal_min: 60
    optimal_max: 100
    lab_min: 0
    lab_max: 130
  - slug: hdl
    name: HDL cholesterol
    unit: mg/dL
    optimal_min: 50
    optimal_max: 90
    lab_min: 40
    lab_max: 120
metrics:
  - slug: ldl_hdl_ratio
    name: LDL/HDL ratio
    formula: "{ldl} / {hdl}"
    target_min: 0
    target_max: 3.0
protocols:
  - id: prot_vit_d_repletion
    type: supplement
    title: Vitamin D repletion
    trigger_condition: "vitamina_d3 < 40"
  - id: prot_thyroid_workup
    type: medical
    title: Thyroid workup
    trigger_condition: "tsh > 4.0 or tsh < 0.4"
`))
	if err != nil {
		t.Fatalf("failed to load test snapshot: %v", err)
	}
	return snap
}

func TestClassifyBiomarkerOptimal(t *testing.T) {
	snap := testSnapshot(t)
	ev := ClassifyBiomarker("tsh", 1.5, snap)
	if ev.Status != StatusOptimal {
		t.Fatalf("tsh 1.5 should be optimal, got %s (%s)", ev.Status, ev.Message)
	}
	if ev.Reference == nil || ev.Reference.Slug != "tsh" {
		t.Errorf("evaluation should snapshot the matched reference")
	}
}

func TestClassifyBiomarkerLabBreachIsAbnormal(t *testing.T) {
	snap := testSnapshot(t)

	// 5.0 is above the lab ceiling of 4.0 and must be abnormal, even though
	// it is closer to the optimal range than to anything else.
	ev := ClassifyBiomarker("tsh", 5.0, snap)
	if ev.Status != StatusAbnormal {
		t.Fatalf("tsh 5.0 should be abnormal, got %s", ev.Status)
	}
	if ev.Message == "" {
		t.Errorf("abnormal evaluation should carry a message")
	}
}

func TestClassifyBiomarkerLabPriorityOverOptimal(t *testing.T) {
	snap := testSnapshot(t)

	// hdl 30 is below lab_min 40; abnormal wins even though it is also below
	// the optimal floor.
	ev := ClassifyBiomarker("hdl", 30, snap)
	if ev.Status != StatusAbnormal {
		t.Fatalf("hdl 30 should be abnormal (lab breach), got %s", ev.Status)
	}
}

func TestClassifyBiomarkerSuboptimal(t *testing.T) {
	snap := testSnapshot(t)
	ev := ClassifyBiomarker("tsh", 3.0, snap)
	if ev.Status != StatusSuboptimal {
		t.Fatalf("tsh 3.0 is within lab but outside optimal, want suboptimal, got %s", ev.Status)
	}
}

func TestClassifyBiomarkerUnknown(t *testing.T) {
	snap := testSnapshot(t)
	ev := ClassifyBiomarker("creatinina", 0.9, snap)
	if ev.Status != StatusUnknown {
		t.Fatalf("slug without reference should be unknown, got %s", ev.Status)
	}
	if ev.Reference != nil {
		t.Errorf("unknown evaluation should carry no reference")
	}
}

func TestEvaluateCountsAndIsolation(t *testing.T) {
	snap := testSnapshot(t)
	res := Evaluate(map[string]float64{
		"tsh":        5.0, // abnormal, triggers thyroid workup
		"ldl":        100, // optimal boundary
		"hdl":        60,  // optimal
		"creatinina": 0.9, // unknown
	}, snap)

	if res.Total != 4 {
		t.Fatalf("expected 4 biomarkers, got %d", res.Total)
	}
	if res.Abnormal != 1 || res.Optimal != 2 || res.Suboptimal != 0 {
		t.Errorf("unexpected counts: optimal=%d suboptimal=%d abnormal=%d",
			res.Optimal, res.Suboptimal, res.Abnormal)
	}

	// ldl_hdl_ratio has both inputs available.
	if res.MetricsCalculated != 1 {
		t.Errorf("expected 1 calculated metric, got %d", res.MetricsCalculated)
	}

	// vitamina_d3 protocol is excluded (no value), thyroid workup triggers.
	if res.ProtocolsTriggered != 1 {
		t.Fatalf("expected 1 triggered protocol, got %d", res.ProtocolsTriggered)
	}
	if res.Protocols[0].ID != "prot_thyroid_workup" {
		t.Errorf("expected prot_thyroid_workup, got %s", res.Protocols[0].ID)
	}
}

func TestEvaluateDeterministicOrder(t *testing.T) {
	snap := testSnapshot(t)
	values := map[string]float64{"tsh": 1.5, "ldl": 80, "hdl": 60}

	first := Evaluate(values, snap)
	second := Evaluate(values, snap)
	for i := range first.Biomarkers {
		if first.Biomarkers[i].Slug != second.Biomarkers[i].Slug {
			t.Fatalf("evaluation order is not deterministic: %s vs %s",
				first.Biomarkers[i].Slug, second.Biomarkers[i].Slug)
		}
	}
}
