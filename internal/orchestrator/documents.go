package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vitalis/internal/extract"
)

// ownedDocument is the on-disk wrapper for a structured document: the
// document plus the id of the user who owns it.
type ownedDocument struct {
	OwnerID  string           `json:"owner_id"`
	Document extract.Document `json:"document"`
}

// FileDocumentProvider resolves documents from a directory of JSON files,
// one per document id. Ownership is enforced: a document owned by another
// user fails the whole resolution.
type FileDocumentProvider struct {
	dir string
}

// NewFileDocumentProvider creates a provider rooted at dir.
func NewFileDocumentProvider(dir string) *FileDocumentProvider {
	return &FileDocumentProvider{dir: dir}
}

// Resolve loads and validates every requested document.
func (p *FileDocumentProvider) Resolve(ctx context.Context, userID string, documentIDs []string) ([]extract.Document, error) {
	docs := make([]extract.Document, 0, len(documentIDs))
	for _, id := range documentIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(p.dir, id+".json"))
		if err != nil {
			return nil, fmt.Errorf("document %s could not be resolved: %w", id, err)
		}

		var owned ownedDocument
		if err := json.Unmarshal(data, &owned); err != nil {
			return nil, fmt.Errorf("document %s is not valid JSON: %w", id, err)
		}
		if owned.OwnerID != userID {
			return nil, fmt.Errorf("document %s is not owned by user %s", id, userID)
		}

		doc := owned.Document
		if doc.ID == "" {
			doc.ID = id
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
