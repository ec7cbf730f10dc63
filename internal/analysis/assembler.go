// Package analysis aggregates the deterministic evaluation output into a
// single logical analysis and renders it as a grounding document for
// generation calls. It is recomputed fresh on every orchestration run and
// embedded into whichever analysis record consumes it, never persisted as a
// standalone mutable entity.
package analysis

import (
	"fmt"

	"vitalis/internal/eval"
	"vitalis/internal/logging"
)

// LogicalAnalysis wraps the evaluation result with critical-alert
// extraction. CriticalAlerts are one-line summaries of every abnormal
// biomarker, used to steer downstream generation.
type LogicalAnalysis struct {
	eval.Result

	CriticalAlerts []string `json:"critical_alerts,omitempty"`
}

// Assemble builds the logical analysis from an evaluation result.
func Assemble(res eval.Result) LogicalAnalysis {
	la := LogicalAnalysis{Result: res}
	for _, b := range res.Biomarkers {
		if b.Status != eval.StatusAbnormal {
			continue
		}
		unit := ""
		if b.Reference != nil {
			unit = " " + b.Reference.Unit
		}
		la.CriticalAlerts = append(la.CriticalAlerts,
			fmt.Sprintf("ALERT: %s = %.2f%s: %s", b.Slug, b.Value, unit, b.Message))
	}

	logging.Analysis("Assemble: %d biomarkers, %d critical alerts", res.Total, len(la.CriticalAlerts))
	return la
}
