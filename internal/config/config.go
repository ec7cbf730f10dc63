// Package config holds all vitalis configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"vitalis/internal/orchestrator"
)

// Config holds all vitalis configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Generation provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Persistence
	Storage StorageConfig `yaml:"storage"`

	// Knowledge tables and retrieval corpus
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Agent roster for the analysis workflow
	Agents orchestrator.Config `yaml:"agents"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation gateway.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// StorageConfig configures persistence paths.
type StorageConfig struct {
	// Workspace root; the .vitalis data dir lives under it
	Workspace string `yaml:"workspace"`

	// SQLite database for workflow records
	DatabasePath string `yaml:"database_path"`

	// Directory of structured-document JSON files
	DocumentsDir string `yaml:"documents_dir"`
}

// KnowledgeConfig configures the reference tables and retrieval corpus.
type KnowledgeConfig struct {
	// Reference table YAML; empty means the embedded seed tables
	TablesPath string `yaml:"tables_path"`

	// Knowledge corpus directory for retrieval; empty disables retrieval
	CorpusDir string `yaml:"corpus_dir"`

	// Watch TablesPath and reload snapshots on change
	HotReload bool `yaml:"hot_reload"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level     string `yaml:"level"` // debug, info, warn, error
	DebugMode bool   `yaml:"debug_mode"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "vitalis",
		Version: "1.0.0",

		LLM: LLMConfig{
			Model:   "gemini-2.5-flash",
			Timeout: "300s",
		},

		Storage: StorageConfig{
			Workspace:    ".",
			DatabasePath: ".vitalis/vitalis.db",
			DocumentsDir: ".vitalis/documents",
		},

		Knowledge: KnowledgeConfig{
			HotReload: false,
		},

		Agents: orchestrator.DefaultConfig(),

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist, and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("VITALIS_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("VITALIS_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if dir := os.Getenv("VITALIS_DOCUMENTS"); dir != "" {
		c.Storage.DocumentsDir = dir
	}
	if path := os.Getenv("VITALIS_TABLES"); path != "" {
		c.Knowledge.TablesPath = path
	}
	if dir := os.Getenv("VITALIS_CORPUS"); dir != "" {
		c.Knowledge.CorpusDir = dir
	}
}
