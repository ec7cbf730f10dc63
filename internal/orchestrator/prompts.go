package orchestrator

import (
	"fmt"
	"strings"

	"vitalis/internal/extract"
)

const synthesisSystem = "You are a clinical analysis synthesizer. Consolidate the provided per-agent analyses into one coherent narrative. Only make claims supported by the analyses and the structured data they reference; drop any claim you cannot trace back to them."

// agentSystem builds the system instruction for one analysis agent.
func agentSystem(agent AgentSpec) string {
	return fmt.Sprintf("You are a clinical analysis agent focused on: %s You ground every statement in the provided deterministic evaluation and document data. You never invent lab values, protocols or dosages.", agent.Focus)
}

// foundationPrompt assembles the prompt for a foundation agent. Prior holds
// the outputs of earlier foundation agents, in order.
func foundationPrompt(agent AgentSpec, grounding, docSummary, prior string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce the %s analysis for this user's lab data.\n\n", agent.Name)
	writeSharedContext(&b, grounding, docSummary)
	if prior != "" {
		b.WriteString("## Earlier foundation analyses\n\n")
		b.WriteString(prior)
		b.WriteString("\n\n")
	}
	b.WriteString("Write a focused analysis. Cover only what the data supports.")
	return b.String()
}

// specializedPrompt assembles the prompt for a specialized agent, embedding
// the full foundation context plus the restriction instructions.
func specializedPrompt(agent AgentSpec, grounding, docSummary, foundationContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce the %s deep-dive analysis for this user's lab data.\n\n", agent.Name)
	writeSharedContext(&b, grounding, docSummary)
	if foundationContext != "" {
		b.WriteString("## Foundation analyses (already delivered to the user)\n\n")
		b.WriteString(foundationContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Do not repeat content already covered by the foundation analyses. ")
	b.WriteString("Restrict yourself strictly to parameters present in the structured data above; do not discuss measurements that were not taken.")
	return b.String()
}

// synthesisPrompt lays out the ordered foundation + specialized outputs for
// the single consolidating call.
func synthesisPrompt(foundation, specialized []agentResult) string {
	var b strings.Builder
	b.WriteString("Consolidate the following analyses into a single clinical synthesis for the user.\n\n")
	b.WriteString("## Foundation analyses\n\n")
	b.WriteString(collectOutputs(foundation))
	b.WriteString("\n\n## Specialized analyses\n\n")
	b.WriteString(collectOutputs(specialized))
	b.WriteString("\n\nWrite one coherent synthesis: key findings, how they interrelate, and the overall picture. No repetition of the per-agent structure.")
	return b.String()
}

func writeSharedContext(b *strings.Builder, grounding, docSummary string) {
	if grounding != "" {
		b.WriteString("## Deterministic evaluation\n\n")
		b.WriteString(grounding)
		b.WriteString("\n\n")
	}
	if docSummary != "" {
		b.WriteString("## Structured document data\n\n")
		b.WriteString(docSummary)
		b.WriteString("\n\n")
	}
}

// renderDocumentSummary serializes the structured documents for prompt
// injection: every module with its parameters, values and reference ranges.
func renderDocumentSummary(docs []extract.Document) string {
	var b strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&b, "Document %s", doc.ID)
		if doc.ExamDate != nil {
			fmt.Fprintf(&b, " (exam date %s)", doc.ExamDate.Format("2006-01-02"))
		}
		b.WriteString(":\n")
		for _, mod := range doc.Modules {
			fmt.Fprintf(&b, "- Module %s", mod.Name)
			if mod.Category != "" {
				fmt.Fprintf(&b, " [%s]", mod.Category)
			}
			if mod.Summary != "" {
				fmt.Fprintf(&b, ": %s", mod.Summary)
			}
			b.WriteString("\n")
			for _, p := range mod.Parameters {
				fmt.Fprintf(&b, "  - %s = %s", p.Name, p.Value)
				if p.Unit != "" {
					fmt.Fprintf(&b, " %s", p.Unit)
				}
				if p.ReferenceRange != "" {
					fmt.Fprintf(&b, " (ref %s)", p.ReferenceRange)
				}
				if p.Status != "" {
					fmt.Fprintf(&b, " [%s]", p.Status)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
