// Package store persists workflow state in SQLite: complete-analysis
// records, per-agent analysis rows, and generated product rows.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"vitalis/internal/logging"
)

// Store wraps the SQLite database. The orchestrator is its only writer for
// a given record; reads may come from any goroutine.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// AnalysisRecord is the persisted form of one workflow run. DocumentIDs and
// AnalysisIDs are stored as JSON arrays.
type AnalysisRecord struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	DocumentIDs       []string   `json:"document_ids"`
	Status            string     `json:"status"`
	AnalysisIDs       []string   `json:"analysis_ids,omitempty"`
	Synthesis         string     `json:"synthesis,omitempty"`
	RecommendationsID string     `json:"recommendations_id,omitempty"`
	WeeklyPlanID      string     `json:"weekly_plan_id,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// AgentAnalysis is one persisted generation result, keyed by agent.
type AgentAnalysis struct {
	ID         string    `json:"id"`
	RecordID   string    `json:"record_id"`
	Agent      string    `json:"agent"`
	Kind       string    `json:"kind"` // foundation, specialized, synthesis
	Prompt     string    `json:"prompt"`
	Result     string    `json:"result"`
	TotalUnits int       `json:"total_units"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Product is one persisted derivative artifact (recommendations or weekly
// plan), stored as a JSON payload.
type Product struct {
	ID         string    `json:"id"`
	RecordID   string    `json:"record_id"`
	Kind       string    `json:"kind"` // recommendations, weekly_plan
	Payload    string    `json:"payload"`
	TotalUnits int       `json:"total_units"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewStore initializes the SQLite database at the given path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Store initialized at %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		document_ids TEXT NOT NULL,
		status TEXT NOT NULL,
		analysis_ids TEXT,
		synthesis TEXT,
		recommendations_id TEXT,
		weekly_plan_id TEXT,
		error_message TEXT,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_records_user ON analysis_records(user_id);
	CREATE INDEX IF NOT EXISTS idx_records_status ON analysis_records(status);

	CREATE TABLE IF NOT EXISTS agent_analyses (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		agent TEXT NOT NULL,
		kind TEXT NOT NULL,
		prompt TEXT,
		result TEXT,
		total_units INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_record ON agent_analyses(record_id);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT,
		total_units INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_record ON products(record_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close shuts down the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// ANALYSIS RECORDS
// =============================================================================

// CreateRecord inserts a new workflow record.
func (s *Store) CreateRecord(rec *AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docIDs, err := json.Marshal(rec.DocumentIDs)
	if err != nil {
		return fmt.Errorf("failed to encode document ids: %w", err)
	}
	analysisIDs, err := json.Marshal(rec.AnalysisIDs)
	if err != nil {
		return fmt.Errorf("failed to encode analysis ids: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO analysis_records
		(id, user_id, document_ids, status, analysis_ids, synthesis, recommendations_id, weekly_plan_id, error_message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, string(docIDs), rec.Status, string(analysisIDs),
		rec.Synthesis, rec.RecommendationsID, rec.WeeklyPlanID, rec.ErrorMessage,
		rec.CreatedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	logging.StoreDebug("CreateRecord: %s user=%s status=%s", rec.ID, rec.UserID, rec.Status)
	return nil
}

// UpdateRecord rewrites the mutable fields of a workflow record.
func (s *Store) UpdateRecord(rec *AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	analysisIDs, err := json.Marshal(rec.AnalysisIDs)
	if err != nil {
		return fmt.Errorf("failed to encode analysis ids: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE analysis_records
		SET status = ?, analysis_ids = ?, synthesis = ?, recommendations_id = ?,
		    weekly_plan_id = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		rec.Status, string(analysisIDs), rec.Synthesis, rec.RecommendationsID,
		rec.WeeklyPlanID, rec.ErrorMessage, rec.CompletedAt, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s not found", rec.ID)
	}

	logging.StoreDebug("UpdateRecord: %s status=%s", rec.ID, rec.Status)
	return nil
}

// GetRecord loads a workflow record by id.
func (s *Store) GetRecord(id string) (*AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, user_id, document_ids, status, analysis_ids, synthesis,
		       recommendations_id, weekly_plan_id, error_message, created_at, completed_at
		FROM analysis_records WHERE id = ?`, id)

	var rec AnalysisRecord
	var docIDs, analysisIDs string
	var completedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.UserID, &docIDs, &rec.Status, &analysisIDs,
		&rec.Synthesis, &rec.RecommendationsID, &rec.WeeklyPlanID, &rec.ErrorMessage,
		&rec.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	if err := json.Unmarshal([]byte(docIDs), &rec.DocumentIDs); err != nil {
		return nil, fmt.Errorf("failed to decode document ids: %w", err)
	}
	if analysisIDs != "" {
		if err := json.Unmarshal([]byte(analysisIDs), &rec.AnalysisIDs); err != nil {
			return nil, fmt.Errorf("failed to decode analysis ids: %w", err)
		}
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return &rec, nil
}

// =============================================================================
// AGENT ANALYSES AND PRODUCTS
// =============================================================================

// SaveAnalysis inserts one generation result row.
func (s *Store) SaveAnalysis(a *AgentAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO agent_analyses (id, record_id, agent, kind, prompt, result, total_units, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RecordID, a.Agent, a.Kind, a.Prompt, a.Result, a.TotalUnits, a.DurationMS, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	logging.StoreDebug("SaveAnalysis: %s record=%s agent=%s kind=%s", a.ID, a.RecordID, a.Agent, a.Kind)
	return nil
}

// ListAnalyses returns all analysis rows for a record, oldest first.
func (s *Store) ListAnalyses(recordID string) ([]AgentAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, record_id, agent, kind, prompt, result, total_units, duration_ms, created_at
		FROM agent_analyses WHERE record_id = ? ORDER BY created_at ASC`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var out []AgentAnalysis
	for rows.Next() {
		var a AgentAnalysis
		if err := rows.Scan(&a.ID, &a.RecordID, &a.Agent, &a.Kind, &a.Prompt, &a.Result,
			&a.TotalUnits, &a.DurationMS, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveProduct inserts one derivative artifact row.
func (s *Store) SaveProduct(p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO products (id, record_id, kind, payload, total_units, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.RecordID, p.Kind, p.Payload, p.TotalUnits, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	logging.StoreDebug("SaveProduct: %s record=%s kind=%s", p.ID, p.RecordID, p.Kind)
	return nil
}

// GetProduct loads a product row by id.
func (s *Store) GetProduct(id string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, record_id, kind, payload, total_units, created_at
		FROM products WHERE id = ?`, id)

	var p Product
	err := row.Scan(&p.ID, &p.RecordID, &p.Kind, &p.Payload, &p.TotalUnits, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return &p, nil
}
