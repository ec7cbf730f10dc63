package eval

import (
	"fmt"
	"sort"

	"vitalis/internal/knowledge"
	"vitalis/internal/logging"
)

// Evaluate runs the full deterministic evaluation of a slug -> value map
// (one value per biomarker, post-deduplication) against the knowledge
// snapshot. A malformed metric or protocol never aborts the others.
func Evaluate(values map[string]float64, snap *knowledge.Snapshot) Result {
	timer := logging.StartTimer(logging.CategoryEvaluator, "Evaluate")
	defer timer.Stop()

	var res Result

	slugs := make([]string, 0, len(values))
	for slug := range values {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs) // deterministic output order

	for _, slug := range slugs {
		ev := ClassifyBiomarker(slug, values[slug], snap)
		res.Biomarkers = append(res.Biomarkers, ev)
		switch ev.Status {
		case StatusOptimal:
			res.Optimal++
		case StatusSuboptimal:
			res.Suboptimal++
		case StatusAbnormal:
			res.Abnormal++
		}
	}
	res.Total = len(res.Biomarkers)

	for _, def := range snap.Metrics {
		calc := CalculateMetric(def, values)
		res.Metrics = append(res.Metrics, calc)
		if calc.Value != nil {
			res.MetricsCalculated++
		}
	}

	for _, def := range snap.Protocols {
		triggered, err := EvaluateTrigger(def, values)
		if err != nil {
			// Per-item isolation: a broken condition excludes only itself.
			logging.EvaluatorDebug("Evaluate: protocol %s excluded: %v", def.ID, err)
			continue
		}
		if triggered {
			res.Protocols = append(res.Protocols, TriggeredProtocol{ProtocolDefinition: def})
		}
	}
	res.ProtocolsTriggered = len(res.Protocols)

	logging.Evaluator("Evaluate: %d biomarkers (%d optimal, %d suboptimal, %d abnormal), %d metrics, %d protocols",
		res.Total, res.Optimal, res.Suboptimal, res.Abnormal, res.MetricsCalculated, res.ProtocolsTriggered)
	return res
}

// ClassifyBiomarker classifies one value against its reference. Lab-range
// breach forces abnormal regardless of the optimal range; inside lab bounds
// an optimal-range breach yields suboptimal; no reference yields unknown.
func ClassifyBiomarker(slug string, value float64, snap *knowledge.Snapshot) BiomarkerEvaluation {
	ref, ok := snap.Reference(slug)
	if !ok {
		return BiomarkerEvaluation{
			Slug:    slug,
			Value:   value,
			Status:  StatusUnknown,
			Message: fmt.Sprintf("No reference range available for %s", slug),
		}
	}

	ev := BiomarkerEvaluation{
		Slug:      slug,
		Value:     value,
		Reference: ref,
	}

	switch {
	case value < ref.LabMin || value > ref.LabMax:
		ev.Status = StatusAbnormal
		ev.Message = fmt.Sprintf("%s %.2f %s is outside the lab range [%.2f, %.2f]",
			ref.Name, value, ref.Unit, ref.LabMin, ref.LabMax)
	case value < ref.OptimalMin || value > ref.OptimalMax:
		ev.Status = StatusSuboptimal
		ev.Message = fmt.Sprintf("%s %.2f %s is within the lab range but outside the optimal range [%.2f, %.2f]",
			ref.Name, value, ref.Unit, ref.OptimalMin, ref.OptimalMax)
	default:
		ev.Status = StatusOptimal
		ev.Message = fmt.Sprintf("%s %.2f %s is within the optimal range [%.2f, %.2f]",
			ref.Name, value, ref.Unit, ref.OptimalMin, ref.OptimalMax)
	}
	return ev
}
