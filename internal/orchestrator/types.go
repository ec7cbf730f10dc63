// Package orchestrator owns the complete-analysis workflow: a state machine
// that sequences foundation analysis, parallel specialized analysis, a single
// synthesis call, and parallel product generation, persisting status
// transitions and artifacts as it goes.
package orchestrator

import (
	"context"
	"time"

	"vitalis/internal/billing"
	"vitalis/internal/extract"
	"vitalis/internal/gateway"
	"vitalis/internal/store"
)

// Status is the workflow state. Transitions are monotonic; StatusFailed is
// reachable from any non-terminal state.
type Status string

const (
	StatusPending              Status = "pending"
	StatusAnalyzingFoundation  Status = "analyzing_foundation"
	StatusAnalyzingSpecialized Status = "analyzing_specialized"
	StatusGeneratingSynthesis  Status = "generating_synthesis"
	StatusGeneratingProducts   Status = "generating_products"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
)

// AgentKind distinguishes the two analysis phases an agent can run in.
type AgentKind string

const (
	KindFoundation  AgentKind = "foundation"
	KindSpecialized AgentKind = "specialized"
)

// AgentSpec configures one generation agent. Foundation agents run
// sequentially in slice order; specialized agents fan out in parallel.
type AgentSpec struct {
	Name           string                  `yaml:"name" json:"name"`
	Kind           AgentKind               `yaml:"kind" json:"kind"`
	Focus          string                  `yaml:"focus" json:"focus"`
	RetrievalQuery string                  `yaml:"retrieval_query,omitempty" json:"retrieval_query,omitempty"`
	Params         gateway.ModelParameters `yaml:"params,omitempty" json:"params,omitempty"`
}

// DocumentProvider resolves document ids to structured documents, enforcing
// that the requesting user owns every one of them.
type DocumentProvider interface {
	Resolve(ctx context.Context, userID string, documentIDs []string) ([]extract.Document, error)
}

// RecordStore is the persistence surface the orchestrator needs.
// *store.Store satisfies it; tests substitute an in-memory fake.
type RecordStore interface {
	CreateRecord(rec *store.AnalysisRecord) error
	UpdateRecord(rec *store.AnalysisRecord) error
	GetRecord(id string) (*store.AnalysisRecord, error)
	SaveAnalysis(a *store.AgentAnalysis) error
	SaveProduct(p *store.Product) error
}

// UsageDebitor charges consumed units. *billing.Ledger satisfies it.
type UsageDebitor interface {
	Debit(ev billing.DebitEvent) error
}

// WorkflowState is the polled view of a record exposed to callers. Failures
// surface exclusively through StatusFailed plus ErrorMessage.
type WorkflowState struct {
	RecordID          string `json:"record_id"`
	Status            Status `json:"status"`
	ErrorMessage      string `json:"error_message,omitempty"`
	Synthesis         string `json:"synthesis,omitempty"`
	RecommendationsID string `json:"recommendations_id,omitempty"`
	WeeklyPlanID      string `json:"weekly_plan_id,omitempty"`
}

// agentResult is one completed generation, owned by exactly one goroutine
// until the fan-in collects it.
type agentResult struct {
	Agent      string
	Kind       AgentKind
	AnalysisID string
	Output     string
	Usage      gateway.Usage
	Duration   time.Duration
	Err        error
}
