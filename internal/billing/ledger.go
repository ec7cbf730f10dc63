// Package billing debits consumed generation units against user accounts and
// keeps aggregate counters. A billing failure never sinks the workflow that
// produced the usage; it is logged and the ledger is left to reconcile later.
package billing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vitalis/internal/logging"
)

// UnitCounts holds prompt/completion unit sums.
type UnitCounts struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// Add accumulates one debit into the counter.
func (c *UnitCounts) Add(prompt, completion int) {
	c.Prompt += int64(prompt)
	c.Completion += int64(completion)
	c.Total += int64(prompt + completion)
}

// DebitEvent is a single recorded charge.
type DebitEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	UserID     string    `json:"user_id"`
	RecordID   string    `json:"record_id"`
	Agent      string    `json:"agent"`
	Operation  string    `json:"operation"` // analysis, synthesis, recommendations, weekly_plan
	Prompt     int       `json:"prompt_units"`
	Completion int       `json:"completion_units"`
}

// AggregatedUsage breaks totals down by the dimensions we report on.
type AggregatedUsage struct {
	Total       UnitCounts            `json:"total"`
	ByUser      map[string]UnitCounts `json:"by_user"`
	ByAgent     map[string]UnitCounts `json:"by_agent"`
	ByOperation map[string]UnitCounts `json:"by_operation"`
	ByRecord    map[string]UnitCounts `json:"by_record"`
}

// ledgerData is the root structure stored in persistence.
type ledgerData struct {
	Version   string          `json:"version"`
	Events    []DebitEvent    `json:"events,omitempty"`
	Aggregate AggregatedUsage `json:"aggregate"`
}

// Ledger manages unit debits and their persistence.
type Ledger struct {
	mu        sync.Mutex
	data      ledgerData
	filePath  string
	dirty     bool
	saveDelay time.Duration
}

// NewLedger creates a ledger persisted under the workspace .vitalis dir.
func NewLedger(workspacePath string) (*Ledger, error) {
	dir := filepath.Join(workspacePath, ".vitalis")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .vitalis dir: %w", err)
	}

	l := &Ledger{
		filePath:  filepath.Join(dir, "billing.json"),
		saveDelay: 5 * time.Second,
		data: ledgerData{
			Version: "1.0",
			Aggregate: AggregatedUsage{
				ByUser:      make(map[string]UnitCounts),
				ByAgent:     make(map[string]UnitCounts),
				ByOperation: make(map[string]UnitCounts),
				ByRecord:    make(map[string]UnitCounts),
			},
		},
	}

	if err := l.load(); err != nil {
		logging.BillingWarn("Ledger load failed, starting empty: %v", err)
	}
	return l, nil
}

func (l *Ledger) load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &l.data); err != nil {
		return err
	}

	// Maps may be nil after decoding an empty or partial file.
	if l.data.Aggregate.ByUser == nil {
		l.data.Aggregate.ByUser = make(map[string]UnitCounts)
	}
	if l.data.Aggregate.ByAgent == nil {
		l.data.Aggregate.ByAgent = make(map[string]UnitCounts)
	}
	if l.data.Aggregate.ByOperation == nil {
		l.data.Aggregate.ByOperation = make(map[string]UnitCounts)
	}
	if l.data.Aggregate.ByRecord == nil {
		l.data.Aggregate.ByRecord = make(map[string]UnitCounts)
	}
	return nil
}

// Save writes the ledger to disk.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

func (l *Ledger) saveLocked() error {
	data, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.filePath, data, 0644)
}

// Debit records one charge against a user.
func (l *Ledger) Debit(ev DebitEvent) error {
	if ev.UserID == "" {
		return fmt.Errorf("debit requires a user id")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.data.Events = append(l.data.Events, ev)
	l.data.Aggregate.Total.Add(ev.Prompt, ev.Completion)
	addToMap(l.data.Aggregate.ByUser, ev.UserID, ev.Prompt, ev.Completion)
	if ev.Agent != "" {
		addToMap(l.data.Aggregate.ByAgent, ev.Agent, ev.Prompt, ev.Completion)
	}
	if ev.Operation != "" {
		addToMap(l.data.Aggregate.ByOperation, ev.Operation, ev.Prompt, ev.Completion)
	}
	if ev.RecordID != "" {
		addToMap(l.data.Aggregate.ByRecord, ev.RecordID, ev.Prompt, ev.Completion)
	}

	logging.Billing("Debit: user=%s record=%s agent=%s op=%s units=%d",
		ev.UserID, ev.RecordID, ev.Agent, ev.Operation, ev.Prompt+ev.Completion)

	// Debounced auto-save
	if !l.dirty {
		l.dirty = true
		time.AfterFunc(l.saveDelay, l.flush)
	}
	return nil
}

// flush writes the ledger and clears the dirty flag under one critical
// section, so a debit landing after the write always schedules a new save.
func (l *Ledger) flush() {
	l.mu.Lock()
	l.dirty = false
	err := l.saveLocked()
	l.mu.Unlock()
	if err != nil {
		logging.BillingWarn("Ledger auto-save failed: %v", err)
	}
}

// Usage returns a copy of the aggregated usage.
func (l *Ledger) Usage() AggregatedUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	agg := l.data.Aggregate
	agg.ByUser = copyCountsMap(agg.ByUser)
	agg.ByAgent = copyCountsMap(agg.ByAgent)
	agg.ByOperation = copyCountsMap(agg.ByOperation)
	agg.ByRecord = copyCountsMap(agg.ByRecord)
	return agg
}

func copyCountsMap(src map[string]UnitCounts) map[string]UnitCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]UnitCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]UnitCounts, key string, prompt, completion int) {
	entry := m[key]
	entry.Add(prompt, completion)
	m[key] = entry
}
