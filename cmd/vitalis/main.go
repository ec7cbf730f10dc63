package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vitalis/internal/analysis"
	"vitalis/internal/billing"
	"vitalis/internal/config"
	"vitalis/internal/eval"
	"vitalis/internal/extract"
	"vitalis/internal/gateway"
	"vitalis/internal/knowledge"
	"vitalis/internal/logging"
	"vitalis/internal/orchestrator"
	"vitalis/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vitalis",
	Short: "vitalis - deterministic lab evaluation and multi-agent clinical analysis",
	Long: `vitalis ingests structured medical-document data, deterministically
evaluates it against curated reference ranges, formulas and trigger-gated
protocols, and drives a multi-phase generation workflow that produces a
clinical synthesis plus personalized recommendations and a weekly plan.

The deterministic engine runs standalone via "vitalis evaluate"; the full
workflow runs via "vitalis analyze".`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize("."); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// evaluateCmd runs the deterministic engine over a documents file.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [documents.json]",
	Short: "Run the deterministic evaluation over structured documents",
	Long: `Reads a JSON array of structured documents, extracts and deduplicates
biomarker observations, classifies them against the reference tables, computes
derived metrics and triggered protocols, and prints the grounding document.

No generation calls are made; this is the standalone Logical Brain entry point.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

// analyzeCmd runs the complete analysis workflow.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [user-id] [document-id...]",
	Short: "Run the full multi-agent analysis workflow",
	Long: `Runs the complete-analysis state machine for the given user over the
given document ids: foundation agents sequentially, specialized agents in
parallel, one synthesis call, then recommendations and the weekly plan in
parallel. Requires GEMINI_API_KEY (or llm.api_key in the config file).`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAnalyze,
}

// statusCmd polls a workflow record.
var statusCmd = &cobra.Command{
	Use:   "status [record-id]",
	Short: "Show the current state of a workflow record",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".vitalis/config.yaml", "config file path")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSnapshot loads the reference tables from the configured path or the
// embedded seed.
func loadSnapshot(cfg *config.Config) (*knowledge.Snapshot, error) {
	if cfg.Knowledge.TablesPath != "" {
		return knowledge.LoadSnapshotFile(cfg.Knowledge.TablesPath)
	}
	return knowledge.DefaultSnapshot()
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(cfg)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read documents file: %w", err)
	}
	var docs []extract.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("documents file is not valid JSON: %w", err)
	}

	extracted := extract.FromDocuments(docs)
	values := extract.ValueMap(extract.Dedupe(extracted.Values))
	logical := analysis.Assemble(eval.Evaluate(values, snap))

	rendered := analysis.RenderGroundingDocument(logical)
	if rendered == "" {
		logger.Warn("no biomarkers matched the reference tables",
			zap.Int("unmatched", len(extracted.Unmatched)))
		fmt.Println("No usable biomarker data found in the provided documents.")
		return nil
	}

	fmt.Println(rendered)
	if len(extracted.Unmatched) > 0 {
		logger.Info("some parameters were not matched",
			zap.Strings("unmatched", extracted.Unmatched))
	}
	return nil
}

// buildOrchestrator wires the workflow collaborators from config.
func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, *store.Store, error) {
	snap, err := loadSnapshot(cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.LLM.APIKey == "" {
		return nil, nil, fmt.Errorf("no API key configured: set GEMINI_API_KEY or llm.api_key")
	}
	gwCfg := gateway.DefaultGenAIConfig(cfg.LLM.APIKey)
	if cfg.LLM.Model != "" {
		gwCfg.Model = cfg.LLM.Model
	}
	if cfg.LLM.Timeout != "" {
		if d, perr := time.ParseDuration(cfg.LLM.Timeout); perr == nil {
			gwCfg.Timeout = d
		}
	}
	gw, err := gateway.NewGenAIGateway(gwCfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := store.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	ledger, err := billing.NewLedger(cfg.Storage.Workspace)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var retriever knowledge.Retriever
	if cfg.Knowledge.CorpusDir != "" {
		retriever = knowledge.NewKeywordRetriever(cfg.Knowledge.CorpusDir)
	}

	var snapshots func() *knowledge.Snapshot
	if cfg.Knowledge.HotReload && cfg.Knowledge.TablesPath != "" {
		watcher, werr := knowledge.NewTableWatcher(cfg.Knowledge.TablesPath, snap, nil)
		if werr != nil {
			logger.Warn("table hot-reload unavailable", zap.Error(werr))
		} else if werr := watcher.Start(context.Background()); werr != nil {
			logger.Warn("table hot-reload unavailable", zap.Error(werr))
		} else {
			snapshots = watcher.Snapshot
		}
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Generator: gw,
		Retriever: retriever,
		Snapshot:  snap,
		Snapshots: snapshots,
		Documents: orchestrator.NewFileDocumentProvider(cfg.Storage.DocumentsDir),
		Records:   db,
		Ledger:    ledger,
		Config:    cfg.Agents,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return orch, db, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	orch, db, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	userID, documentIDs := args[0], args[1:]
	logger.Info("starting analysis workflow",
		zap.String("user", userID), zap.Strings("documents", documentIDs))

	recordID, err := orch.Run(context.Background(), userID, documentIDs)
	if recordID != "" {
		fmt.Printf("record: %s\n", recordID)
	}
	if err != nil {
		return fmt.Errorf("workflow failed: %w", err)
	}

	state, err := orch.WorkflowStatus(recordID)
	if err != nil {
		return err
	}
	fmt.Printf("status: %s\n", state.Status)
	fmt.Printf("recommendations: %s\n", state.RecommendationsID)
	fmt.Printf("weekly plan: %s\n", state.WeeklyPlanID)
	fmt.Printf("\n%s\n", state.Synthesis)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := store.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := db.GetRecord(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("record:  %s\n", rec.ID)
	fmt.Printf("status:  %s\n", rec.Status)
	if rec.ErrorMessage != "" {
		fmt.Printf("error:   %s\n", rec.ErrorMessage)
	}
	if rec.RecommendationsID != "" {
		fmt.Printf("recommendations: %s\n", rec.RecommendationsID)
	}
	if rec.WeeklyPlanID != "" {
		fmt.Printf("weekly plan:     %s\n", rec.WeeklyPlanID)
	}
	if rec.CompletedAt != nil {
		fmt.Printf("completed: %s\n", rec.CompletedAt.Format(time.RFC3339))
	}
	return nil
}
