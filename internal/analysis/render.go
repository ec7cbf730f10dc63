package analysis

import (
	"fmt"
	"strings"
)

// RenderGroundingDocument serializes the full analysis into a markdown
// document injected as context into generation calls. It is purely
// data-to-text: every biomarker, metric and protocol appears with its key
// attributes. Returns an empty string when the analysis contains zero
// biomarkers, signalling that no grounding context is available.
func RenderGroundingDocument(la LogicalAnalysis) string {
	if la.Total == 0 {
		return ""
	}

	var b strings.Builder

	b.WriteString("# Deterministic evaluation of available lab data\n\n")
	fmt.Fprintf(&b, "Summary: %d biomarkers evaluated (%d optimal, %d suboptimal, %d abnormal), %d metrics calculated, %d protocols triggered.\n\n",
		la.Total, la.Optimal, la.Suboptimal, la.Abnormal, la.MetricsCalculated, la.ProtocolsTriggered)

	if len(la.CriticalAlerts) > 0 {
		b.WriteString("## Critical alerts\n\n")
		for _, alert := range la.CriticalAlerts {
			fmt.Fprintf(&b, "- %s\n", alert)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Biomarker evaluations\n\n")
	for _, bm := range la.Biomarkers {
		fmt.Fprintf(&b, "- **%s** = %.2f", bm.Slug, bm.Value)
		if bm.Reference != nil {
			fmt.Fprintf(&b, " %s", bm.Reference.Unit)
		}
		fmt.Fprintf(&b, " [%s]: %s", bm.Status, bm.Message)
		if bm.Reference != nil && bm.Reference.ClinicalInsight != "" {
			fmt.Fprintf(&b, " Insight: %s", bm.Reference.ClinicalInsight)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(la.Metrics) > 0 {
		b.WriteString("## Derived metrics\n\n")
		for _, m := range la.Metrics {
			if m.Value != nil {
				fmt.Fprintf(&b, "- **%s** (`%s`) = %.2f [%s]: %s\n", m.Name, m.Formula, *m.Value, m.Status, m.Message)
			} else {
				fmt.Fprintf(&b, "- **%s** (`%s`): not calculable (%s)\n", m.Name, m.Formula, m.Error)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Triggered protocols\n\n")
	if len(la.Protocols) == 0 {
		b.WriteString("No protocols were triggered by the available data.\n\n")
	} else {
		for _, p := range la.Protocols {
			fmt.Fprintf(&b, "- [%s] **%s**", p.Type, p.Title)
			if p.Dosage != "" {
				fmt.Fprintf(&b, " (dosage: %s)", p.Dosage)
			}
			if p.Description != "" {
				fmt.Fprintf(&b, ": %s", p.Description)
			}
			if p.SourceRef != "" {
				fmt.Fprintf(&b, " [source: %s]", p.SourceRef)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("IMPORTANT: the protocols listed above are the authoritative, deterministically ")
	b.WriteString("triggered recommendations for this data. Do not invent protocols, dosages or ")
	b.WriteString("supplements that are not listed here, and do not contradict the evaluations above.\n")

	return b.String()
}
