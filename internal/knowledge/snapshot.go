package knowledge

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vitalis/internal/logging"
)

//go:embed tables.yaml
var defaultTables []byte

// Snapshot is an immutable view of the reference tables for a single run.
// The evaluator only reads from it; reloads produce a fresh Snapshot rather
// than mutating an existing one.
type Snapshot struct {
	Biomarkers []BiomarkerReference `yaml:"biomarkers"`
	Metrics    []MetricDefinition   `yaml:"metrics"`
	Protocols  []ProtocolDefinition `yaml:"protocols"`

	bySlug map[string]*BiomarkerReference
}

// LoadSnapshot parses reference tables from YAML bytes.
func LoadSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge tables: %w", err)
	}
	s.index()

	logging.Knowledge("Loaded knowledge snapshot: %d biomarkers, %d metrics, %d protocols",
		len(s.Biomarkers), len(s.Metrics), len(s.Protocols))
	return &s, nil
}

// LoadSnapshotFile reads reference tables from a YAML file on disk.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge tables: %w", err)
	}
	return LoadSnapshot(data)
}

// DefaultSnapshot loads the embedded seed tables.
func DefaultSnapshot() (*Snapshot, error) {
	return LoadSnapshot(defaultTables)
}

func (s *Snapshot) index() {
	s.bySlug = make(map[string]*BiomarkerReference, len(s.Biomarkers))
	for i := range s.Biomarkers {
		s.bySlug[s.Biomarkers[i].Slug] = &s.Biomarkers[i]
	}
}

// Reference looks up a biomarker reference by canonical slug.
func (s *Snapshot) Reference(slug string) (*BiomarkerReference, bool) {
	ref, ok := s.bySlug[slug]
	return ref, ok
}

// Slugs returns all canonical biomarker slugs in the snapshot.
func (s *Snapshot) Slugs() []string {
	slugs := make([]string, 0, len(s.Biomarkers))
	for _, b := range s.Biomarkers {
		slugs = append(slugs, b.Slug)
	}
	return slugs
}
