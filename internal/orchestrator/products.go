package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vitalis/internal/gateway"
	"vitalis/internal/logging"
	"vitalis/internal/store"
)

// =============================================================================
// PRODUCT GENERATION
// =============================================================================
// Products are derivative artifacts generated after synthesis:
// recommendations (one shaped call) and the weekly plan (four shaped
// sub-generations, one per pillar, merged into a single payload).

// weeklyPlanPillars are the four sub-generations that compose the plan.
var weeklyPlanPillars = []string{"nutrition", "movement", "recovery", "supplementation"}

// recommendationsShape constrains the recommendations product.
func recommendationsShape() *gateway.SchemaDescriptor {
	return gateway.Object(map[string]*gateway.SchemaDescriptor{
		"recommendations": gateway.Array(gateway.Object(map[string]*gateway.SchemaDescriptor{
			"title":     gateway.String("Short actionable title"),
			"category":  gateway.Enum("supplement", "diet", "exercise", "medical", "lifestyle"),
			"rationale": gateway.String("Why this recommendation follows from the synthesis"),
			"priority":  gateway.Enum("high", "medium", "low"),
		})),
	})
}

// pillarShape constrains one weekly-plan pillar: seven day entries.
func pillarShape(pillar string) *gateway.SchemaDescriptor {
	return gateway.Object(map[string]*gateway.SchemaDescriptor{
		"pillar": gateway.Enum(pillar),
		"days": gateway.Array(gateway.Object(map[string]*gateway.SchemaDescriptor{
			"day":    gateway.Enum("monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"),
			"action": gateway.String("Concrete action for this day"),
			"detail": gateway.String("How to execute it"),
		})),
	})
}

// generateRecommendations issues one shaped call and persists the product.
func (o *Orchestrator) generateRecommendations(ctx context.Context, rec *store.AnalysisRecord, synthesis, grounding string) (string, error) {
	prompt := fmt.Sprintf(
		"Derive personalized recommendations from this clinical synthesis.\n\n## Synthesis\n\n%s\n\n%s"+
			"Every recommendation must trace back to the synthesis or the deterministic evaluation. "+
			"Where the evaluation lists triggered protocols, they take priority over anything else.",
		synthesis, groundingSection(grounding))

	resp, err := o.gen.Generate(ctx, gateway.Request{
		Prompt:      prompt,
		System:      "You produce structured, actionable health recommendations. You never invent protocols or dosages beyond the provided context.",
		OutputShape: recommendationsShape(),
		Params:      o.cfg.ProductParams,
	})
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(resp.Object)
	if err != nil {
		return "", fmt.Errorf("failed to encode recommendations payload: %w", err)
	}

	id := uuid.NewString()
	o.persistProduct(rec, &store.Product{
		ID:         id,
		RecordID:   rec.ID,
		Kind:       "recommendations",
		Payload:    string(payload),
		TotalUnits: resp.Usage.TotalUnits,
		CreatedAt:  time.Now(),
	})
	o.debit(rec, "recommendations", "recommendations", resp.Usage)
	return id, nil
}

// generateWeeklyPlan runs the four pillar sub-generations in parallel and
// merges them into one product payload with aggregate usage.
func (o *Orchestrator) generateWeeklyPlan(ctx context.Context, rec *store.AnalysisRecord, synthesis, grounding string) (string, error) {
	pillars := make([]map[string]interface{}, len(weeklyPlanPillars))
	usages := make([]gateway.Usage, len(weeklyPlanPillars))

	g, gctx := errgroup.WithContext(ctx)
	for i, pillar := range weeklyPlanPillars {
		i, pillar := i, pillar
		g.Go(func() error {
			prompt := fmt.Sprintf(
				"Derive the %s pillar of a seven-day action plan from this clinical synthesis.\n\n## Synthesis\n\n%s\n\n%s"+
					"Cover all seven days. Keep actions realistic for a single week and consistent with the synthesis.",
				pillar, synthesis, groundingSection(grounding))

			resp, err := o.gen.Generate(gctx, gateway.Request{
				Prompt:      prompt,
				System:      "You produce one pillar of a structured weekly health plan, grounded strictly in the provided context.",
				OutputShape: pillarShape(pillar),
				Params:      o.cfg.ProductParams,
			})
			if err != nil {
				return fmt.Errorf("pillar %s failed: %w", pillar, err)
			}
			pillars[i] = resp.Object
			usages[i] = resp.Usage
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var total gateway.Usage
	merged := make(map[string]interface{}, len(weeklyPlanPillars))
	for i, pillar := range weeklyPlanPillars {
		merged[pillar] = pillars[i]
		total.Add(usages[i])
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("failed to encode weekly plan payload: %w", err)
	}

	id := uuid.NewString()
	o.persistProduct(rec, &store.Product{
		ID:         id,
		RecordID:   rec.ID,
		Kind:       "weekly_plan",
		Payload:    string(payload),
		TotalUnits: total.TotalUnits,
		CreatedAt:  time.Now(),
	})
	o.debit(rec, "weekly_plan", "weekly_plan", total)
	return id, nil
}

// persistProduct stores a product row; failure is logged, not fatal.
func (o *Orchestrator) persistProduct(rec *store.AnalysisRecord, p *store.Product) {
	if err := o.records.SaveProduct(p); err != nil {
		logging.OrchestratorError("Failed to persist %s product for workflow %s (workflow degraded): %v", p.Kind, rec.ID, err)
	}
}

func groundingSection(grounding string) string {
	if grounding == "" {
		return ""
	}
	return "## Deterministic evaluation\n\n" + grounding + "\n\n"
}
