package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vitalis/internal/analysis"
	"vitalis/internal/billing"
	"vitalis/internal/eval"
	"vitalis/internal/extract"
	"vitalis/internal/gateway"
	"vitalis/internal/knowledge"
	"vitalis/internal/logging"
	"vitalis/internal/store"
)

// Config holds the agent roster and generation tuning for the workflow.
type Config struct {
	FoundationAgents  []AgentSpec             `yaml:"foundation_agents"`
	SpecializedAgents []AgentSpec             `yaml:"specialized_agents"`
	SynthesisParams   gateway.ModelParameters `yaml:"synthesis_params,omitempty"`
	ProductParams     gateway.ModelParameters `yaml:"product_params,omitempty"`
	RetrievalChunks   int                     `yaml:"retrieval_chunks,omitempty"`
	RetrievalChars    int                     `yaml:"retrieval_chars,omitempty"`
}

// DefaultConfig returns the standard agent roster.
func DefaultConfig() Config {
	return Config{
		FoundationAgents: []AgentSpec{
			{Name: "baseline-health", Kind: KindFoundation,
				Focus:          "Overall health baseline: summarize the general state of the available lab data, major systems involved, and the most significant findings.",
				RetrievalQuery: "general health baseline interpretation lab panel"},
			{Name: "risk-patterns", Kind: KindFoundation,
				Focus:          "Risk patterns: identify combinations of findings that compound into elevated metabolic, cardiovascular or endocrine risk.",
				RetrievalQuery: "risk factors metabolic cardiovascular patterns"},
		},
		SpecializedAgents: []AgentSpec{
			{Name: "metabolic", Kind: KindSpecialized,
				Focus:          "Metabolic health: glucose regulation, insulin sensitivity, lipid transport.",
				RetrievalQuery: "glucose insulin resistance lipids metabolic syndrome"},
			{Name: "hormonal", Kind: KindSpecialized,
				Focus:          "Hormonal systems: thyroid axis, cortisol, sex hormones.",
				RetrievalQuery: "thyroid cortisol testosterone hormonal balance"},
			{Name: "micronutrients", Kind: KindSpecialized,
				Focus:          "Micronutrient status: vitamin D, B12, iron stores.",
				RetrievalQuery: "vitamin d b12 ferritin deficiency repletion"},
			{Name: "inflammation", Kind: KindSpecialized,
				Focus:          "Inflammation and recovery: inflammatory markers and their drivers.",
				RetrievalQuery: "inflammation crp chronic low grade recovery"},
		},
		RetrievalChunks: 4,
		RetrievalChars:  1200,
	}
}

// Orchestrator drives the complete-analysis state machine. The record is the
// single piece of mutable shared state per workflow and only the workflow
// goroutine writes it; readers go through the store.
type Orchestrator struct {
	mu sync.RWMutex

	gen       gateway.Generator
	retriever knowledge.Retriever
	snapshots func() *knowledge.Snapshot
	docs      DocumentProvider
	records   RecordStore
	ledger    UsageDebitor
	cfg       Config
}

// Deps bundles the orchestrator's collaborators. Retriever and Ledger are
// optional: a nil retriever degrades every agent to empty grounding context,
// and a nil ledger skips usage debits. Snapshots (optional) supersedes
// Snapshot and lets each workflow pick up hot-reloaded reference tables; a
// single run still sees one immutable snapshot throughout.
type Deps struct {
	Generator gateway.Generator
	Retriever knowledge.Retriever
	Snapshot  *knowledge.Snapshot
	Snapshots func() *knowledge.Snapshot
	Documents DocumentProvider
	Records   RecordStore
	Ledger    UsageDebitor
	Config    Config
}

// New creates a workflow orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("orchestrator requires a generator")
	}
	if deps.Snapshot == nil && deps.Snapshots == nil {
		return nil, fmt.Errorf("orchestrator requires a knowledge snapshot")
	}
	if deps.Documents == nil {
		return nil, fmt.Errorf("orchestrator requires a document provider")
	}
	if deps.Records == nil {
		return nil, fmt.Errorf("orchestrator requires a record store")
	}
	snapshots := deps.Snapshots
	if snapshots == nil {
		snap := deps.Snapshot
		snapshots = func() *knowledge.Snapshot { return snap }
	}
	return &Orchestrator{
		gen:       deps.Generator,
		retriever: deps.Retriever,
		snapshots: snapshots,
		docs:      deps.Documents,
		records:   deps.Records,
		ledger:    deps.Ledger,
		cfg:       deps.Config,
	}, nil
}

// StartWorkflow creates the record in pending state and advances it in the
// background. The workflow outlives the caller's request, so it runs under
// its own context.
func (o *Orchestrator) StartWorkflow(userID string, documentIDs []string) (string, error) {
	rec, err := o.createRecord(userID, documentIDs)
	if err != nil {
		return "", err
	}
	go o.run(context.Background(), rec, userID, documentIDs)
	return rec.ID, nil
}

// Run executes the full workflow synchronously and returns the record id.
// The returned error is the workflow failure, if any; the record carries the
// same information in its status and error message.
func (o *Orchestrator) Run(ctx context.Context, userID string, documentIDs []string) (string, error) {
	rec, err := o.createRecord(userID, documentIDs)
	if err != nil {
		return "", err
	}
	return rec.ID, o.run(ctx, rec, userID, documentIDs)
}

// WorkflowStatus returns the polled view of a record.
func (o *Orchestrator) WorkflowStatus(recordID string) (WorkflowState, error) {
	rec, err := o.records.GetRecord(recordID)
	if err != nil {
		return WorkflowState{}, err
	}
	return WorkflowState{
		RecordID:          rec.ID,
		Status:            Status(rec.Status),
		ErrorMessage:      rec.ErrorMessage,
		Synthesis:         rec.Synthesis,
		RecommendationsID: rec.RecommendationsID,
		WeeklyPlanID:      rec.WeeklyPlanID,
	}, nil
}

func (o *Orchestrator) createRecord(userID string, documentIDs []string) (*store.AnalysisRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("workflow requires a user id")
	}
	if len(documentIDs) == 0 {
		return nil, fmt.Errorf("workflow requires at least one document id")
	}

	rec := &store.AnalysisRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		DocumentIDs: documentIDs,
		Status:      string(StatusPending),
		CreatedAt:   time.Now(),
	}
	if err := o.records.CreateRecord(rec); err != nil {
		return nil, fmt.Errorf("failed to create workflow record: %w", err)
	}
	logging.Orchestrator("Workflow %s created for user %s over %d documents", rec.ID, userID, len(documentIDs))
	return rec, nil
}

// run advances the state machine phase by phase. Any phase error transitions
// the record to failed with a human-readable message.
func (o *Orchestrator) run(ctx context.Context, rec *store.AnalysisRecord, userID string, documentIDs []string) error {
	timer := logging.StartTimer(logging.CategoryOrchestrator, "workflow "+rec.ID)
	defer timer.Stop()

	// Fail-fast validation, before any billable call.
	if len(o.cfg.FoundationAgents) == 0 {
		return o.fail(rec, fmt.Errorf("no foundation agents configured"))
	}
	if len(o.cfg.SpecializedAgents) == 0 {
		return o.fail(rec, fmt.Errorf("no specialized agents configured"))
	}

	docs, err := o.docs.Resolve(ctx, userID, documentIDs)
	if err != nil {
		return o.fail(rec, fmt.Errorf("document resolution failed: %w", err))
	}
	if len(docs) == 0 {
		return o.fail(rec, fmt.Errorf("no usable documents resolved"))
	}

	// Deterministic evaluation: extraction, classification, grounding render.
	// The snapshot is pinned here; a table reload mid-run never affects an
	// in-flight workflow.
	snap := o.snapshots()
	extracted := extract.FromDocuments(docs)
	values := extract.ValueMap(extract.Dedupe(extracted.Values))
	logical := analysis.Assemble(eval.Evaluate(values, snap))
	grounding := analysis.RenderGroundingDocument(logical)
	if grounding == "" {
		logging.OrchestratorWarn("Workflow %s: no biomarkers extracted, generation runs without grounding context", rec.ID)
	}
	docSummary := renderDocumentSummary(docs)

	// Phase: foundation agents, sequentially.
	o.setStatus(rec, StatusAnalyzingFoundation)
	foundation, err := o.runFoundation(ctx, rec, grounding, docSummary)
	if err != nil {
		return o.fail(rec, err)
	}

	// Phase: specialized agents, in parallel.
	o.setStatus(rec, StatusAnalyzingSpecialized)
	specialized, err := o.runSpecialized(ctx, rec, grounding, docSummary, foundation)
	if err != nil {
		return o.fail(rec, err)
	}

	// Phase: single synthesis call.
	o.setStatus(rec, StatusGeneratingSynthesis)
	synthesis, err := o.runSynthesis(ctx, rec, foundation, specialized)
	if err != nil {
		return o.fail(rec, err)
	}
	rec.Synthesis = synthesis

	// Phase: products, in parallel.
	o.setStatus(rec, StatusGeneratingProducts)
	if err := o.runProducts(ctx, rec, synthesis, grounding); err != nil {
		return o.fail(rec, err)
	}

	now := time.Now()
	rec.CompletedAt = &now
	o.setStatus(rec, StatusCompleted)
	logging.Orchestrator("Workflow %s completed: %d analyses, synthesis %d chars",
		rec.ID, len(rec.AnalysisIDs), len(rec.Synthesis))
	return nil
}

// =============================================================================
// PHASES
// =============================================================================

// runFoundation executes foundation agents in slice order. Later agents see
// the outputs of earlier ones. Any single failure sinks the workflow since
// downstream phases depend on the full foundation context.
func (o *Orchestrator) runFoundation(ctx context.Context, rec *store.AnalysisRecord, grounding, docSummary string) ([]agentResult, error) {
	results := make([]agentResult, 0, len(o.cfg.FoundationAgents))
	for _, agent := range o.cfg.FoundationAgents {
		prior := collectOutputs(results)
		res := o.invokeAgent(ctx, rec, agent, foundationPrompt(agent, grounding, docSummary, prior))
		if res.Err != nil {
			return nil, fmt.Errorf("foundation agent %s failed: %w", agent.Name, res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

// runSpecialized fans out every specialized agent in parallel, each with its
// own result slot. A single agent failure is isolated; the phase fails only
// when every agent failed. No result is fabricated for a failed agent.
func (o *Orchestrator) runSpecialized(ctx context.Context, rec *store.AnalysisRecord, grounding, docSummary string, foundation []agentResult) ([]agentResult, error) {
	foundationContext := collectOutputs(foundation)
	results := make([]agentResult, len(o.cfg.SpecializedAgents))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range o.cfg.SpecializedAgents {
		i, agent := i, agent
		g.Go(func() error {
			results[i] = o.invokeAgent(gctx, rec, agent, specializedPrompt(agent, grounding, docSummary, foundationContext))
			// Siblings keep running; the slot carries the failure.
			return nil
		})
	}
	g.Wait()

	succeeded := make([]agentResult, 0, len(results))
	var failures []string
	for _, res := range results {
		if res.Err != nil {
			logging.OrchestratorWarn("Workflow %s: specialized agent %s failed: %v", rec.ID, res.Agent, res.Err)
			failures = append(failures, fmt.Sprintf("%s: %v", res.Agent, res.Err))
			continue
		}
		succeeded = append(succeeded, res)
	}
	if len(succeeded) == 0 {
		return nil, fmt.Errorf("all specialized agents failed: %s", strings.Join(failures, "; "))
	}
	return succeeded, nil
}

// runSynthesis issues the single consolidating call over the ordered
// foundation + specialized outputs.
func (o *Orchestrator) runSynthesis(ctx context.Context, rec *store.AnalysisRecord, foundation, specialized []agentResult) (string, error) {
	started := time.Now()
	resp, err := o.gen.Generate(ctx, gateway.Request{
		Prompt: synthesisPrompt(foundation, specialized),
		System: synthesisSystem,
		Params: o.cfg.SynthesisParams,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis generation failed: %w", err)
	}

	o.persistAnalysis(rec, agentResult{
		Agent:      "synthesis",
		Kind:       "synthesis",
		AnalysisID: uuid.NewString(),
		Output:     resp.Text,
		Usage:      resp.Usage,
		Duration:   time.Since(started),
	}, synthesisPrompt(foundation, specialized))
	o.debit(rec, "synthesis", "synthesis", resp.Usage)
	return resp.Text, nil
}

// runProducts generates recommendations and the weekly plan in parallel.
// Either branch failing fails the workflow.
func (o *Orchestrator) runProducts(ctx context.Context, rec *store.AnalysisRecord, synthesis, grounding string) error {
	var recommendationsID, weeklyPlanID string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := o.generateRecommendations(gctx, rec, synthesis, grounding)
		if err != nil {
			return fmt.Errorf("recommendations generation failed: %w", err)
		}
		recommendationsID = id
		return nil
	})
	g.Go(func() error {
		id, err := o.generateWeeklyPlan(gctx, rec, synthesis, grounding)
		if err != nil {
			return fmt.Errorf("weekly plan generation failed: %w", err)
		}
		weeklyPlanID = id
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	rec.RecommendationsID = recommendationsID
	rec.WeeklyPlanID = weeklyPlanID
	return nil
}

// =============================================================================
// AGENT INVOCATION AND BOOKKEEPING
// =============================================================================

// invokeAgent runs one agent: optional grounding retrieval (degrades to
// empty context on failure), one generation call, persistence, debit.
func (o *Orchestrator) invokeAgent(ctx context.Context, rec *store.AnalysisRecord, agent AgentSpec, prompt string) agentResult {
	started := time.Now()
	res := agentResult{Agent: agent.Name, Kind: agent.Kind}

	knowledgeContext := o.retrieve(ctx, agent)
	if knowledgeContext != "" {
		prompt = prompt + "\n\n## Knowledge base context\n\n" + knowledgeContext
	}

	resp, err := o.gen.Generate(ctx, gateway.Request{
		Prompt: prompt,
		System: agentSystem(agent),
		Params: agent.Params,
	})
	if err != nil {
		res.Err = err
		return res
	}

	res.AnalysisID = uuid.NewString()
	res.Output = resp.Text
	res.Usage = resp.Usage
	res.Duration = time.Since(started)

	o.persistAnalysis(rec, res, prompt)
	o.debit(rec, agent.Name, "analysis", resp.Usage)
	return res
}

// retrieve fetches grounding text for an agent. Retrieval failure is
// recoverable: log and continue with empty context.
func (o *Orchestrator) retrieve(ctx context.Context, agent AgentSpec) string {
	if o.retriever == nil || agent.RetrievalQuery == "" {
		return ""
	}
	text, err := o.retriever.Retrieve(ctx, agent.RetrievalQuery, knowledge.RetrieveOptions{
		MaxChunks:        o.cfg.RetrievalChunks,
		MaxCharsPerChunk: o.cfg.RetrievalChars,
		AgentScope:       agent.Name,
	})
	if err != nil {
		logging.OrchestratorWarn("Retrieval for agent %s failed, continuing without context: %v", agent.Name, err)
		return ""
	}
	return text
}

// persistAnalysis stores one generation result. A persistence failure is
// logged and does not invalidate the in-memory result.
func (o *Orchestrator) persistAnalysis(rec *store.AnalysisRecord, res agentResult, prompt string) {
	err := o.records.SaveAnalysis(&store.AgentAnalysis{
		ID:         res.AnalysisID,
		RecordID:   rec.ID,
		Agent:      res.Agent,
		Kind:       string(res.Kind),
		Prompt:     prompt,
		Result:     res.Output,
		TotalUnits: res.Usage.TotalUnits,
		DurationMS: res.Duration.Milliseconds(),
		CreatedAt:  time.Now(),
	})
	if err != nil {
		logging.OrchestratorError("Failed to persist analysis for agent %s (workflow degraded): %v", res.Agent, err)
		return
	}

	o.mu.Lock()
	rec.AnalysisIDs = append(rec.AnalysisIDs, res.AnalysisID)
	o.mu.Unlock()
}

// debit charges the units consumed by one call. Billing failure is logged
// only; it never affects workflow success.
func (o *Orchestrator) debit(rec *store.AnalysisRecord, agent, operation string, usage gateway.Usage) {
	if o.ledger == nil {
		return
	}
	err := o.ledger.Debit(billing.DebitEvent{
		UserID:     rec.UserID,
		RecordID:   rec.ID,
		Agent:      agent,
		Operation:  operation,
		Prompt:     usage.PromptUnits,
		Completion: usage.CompletionUnits,
	})
	if err != nil {
		logging.BillingWarn("Debit failed for user %s (workflow unaffected): %v", rec.UserID, err)
	}
}

// setStatus advances the record and persists the transition.
func (o *Orchestrator) setStatus(rec *store.AnalysisRecord, status Status) {
	rec.Status = string(status)
	if err := o.records.UpdateRecord(rec); err != nil {
		logging.OrchestratorError("Failed to persist status %s for workflow %s: %v", status, rec.ID, err)
	}
	logging.Orchestrator("Workflow %s -> %s", rec.ID, status)
}

// fail transitions the record to the terminal failed state and surfaces the
// error to the caller.
func (o *Orchestrator) fail(rec *store.AnalysisRecord, err error) error {
	rec.Status = string(StatusFailed)
	rec.ErrorMessage = err.Error()
	now := time.Now()
	rec.CompletedAt = &now
	if uerr := o.records.UpdateRecord(rec); uerr != nil {
		logging.OrchestratorError("Failed to persist failure for workflow %s: %v", rec.ID, uerr)
	}
	logging.OrchestratorError("Workflow %s failed: %v", rec.ID, err)
	return err
}

// collectOutputs joins agent outputs in order, labelled per agent.
func collectOutputs(results []agentResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, res := range results {
		fmt.Fprintf(&b, "### Analysis by %s agent\n\n%s\n\n", res.Agent, res.Output)
	}
	return strings.TrimSpace(b.String())
}
