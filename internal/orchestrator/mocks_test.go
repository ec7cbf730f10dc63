package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"vitalis/internal/billing"
	"vitalis/internal/extract"
	"vitalis/internal/gateway"
	"vitalis/internal/knowledge"
	"vitalis/internal/store"
)

// =============================================================================
// GENERATOR STUB
// =============================================================================

// stubGenerator returns canned responses and records every request. Requests
// whose prompt contains a failSubstring fail instead.
type stubGenerator struct {
	mu             sync.Mutex
	calls          []gateway.Request
	failSubstrings []string
}

func (g *stubGenerator) Generate(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()

	for _, s := range g.failSubstrings {
		if strings.Contains(req.Prompt, s) {
			return nil, fmt.Errorf("stubbed generation failure for %q", s)
		}
	}

	resp := &gateway.Response{
		Usage: gateway.Usage{PromptUnits: 100, CompletionUnits: 50, TotalUnits: 150},
	}
	if req.OutputShape != nil {
		resp.Object = map[string]interface{}{"stub": true}
	} else {
		resp.Text = "stub analysis output"
	}
	return resp, nil
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *stubGenerator) callsMatching(substring string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, req := range g.calls {
		if strings.Contains(req.Prompt, substring) {
			n++
		}
	}
	return n
}

// =============================================================================
// STORE STUB
// =============================================================================

// memStore is an in-memory RecordStore that records status transitions.
type memStore struct {
	mu          sync.Mutex
	records     map[string]*store.AnalysisRecord
	analyses    []*store.AgentAnalysis
	products    []*store.Product
	transitions []string
	failSaves   bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*store.AnalysisRecord)}
}

func (m *memStore) CreateRecord(rec *store.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	m.records[rec.ID] = &clone
	m.transitions = append(m.transitions, rec.Status)
	return nil
}

func (m *memStore) UpdateRecord(rec *store.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return fmt.Errorf("record %s not found", rec.ID)
	}
	clone := *rec
	clone.AnalysisIDs = append([]string(nil), rec.AnalysisIDs...)
	m.records[rec.ID] = &clone
	m.transitions = append(m.transitions, rec.Status)
	return nil
}

func (m *memStore) GetRecord(id string) (*store.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s not found", id)
	}
	clone := *rec
	return &clone, nil
}

func (m *memStore) SaveAnalysis(a *store.AgentAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves {
		return fmt.Errorf("stubbed persistence failure")
	}
	m.analyses = append(m.analyses, a)
	return nil
}

func (m *memStore) SaveProduct(p *store.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves {
		return fmt.Errorf("stubbed persistence failure")
	}
	m.products = append(m.products, p)
	return nil
}

func (m *memStore) analysisCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.analyses)
}

func (m *memStore) productKinds() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make(map[string]int)
	for _, p := range m.products {
		kinds[p.Kind]++
	}
	return kinds
}

func (m *memStore) statusHistory() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.transitions...)
}

// =============================================================================
// OTHER COLLABORATOR STUBS
// =============================================================================

// stubDocs resolves a fixed document set or fails.
type stubDocs struct {
	docs []extract.Document
	err  error
}

func (d *stubDocs) Resolve(ctx context.Context, userID string, documentIDs []string) ([]extract.Document, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.docs, nil
}

// stubRetriever returns fixed context or fails.
type stubRetriever struct {
	text string
	err  error
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string, opts knowledge.RetrieveOptions) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.text, nil
}

// stubLedger records debits and can be made to fail.
type stubLedger struct {
	mu     sync.Mutex
	debits []billing.DebitEvent
	err    error
}

func (l *stubLedger) Debit(ev billing.DebitEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.debits = append(l.debits, ev)
	return nil
}

func (l *stubLedger) debitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.debits)
}
