package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"vitalis/internal/logging"
)

// =============================================================================
// KNOWLEDGE-BASE RETRIEVAL
// =============================================================================

// RetrieveOptions bounds a single retrieval call.
type RetrieveOptions struct {
	MaxChunks        int
	MaxCharsPerChunk int
	// AgentScope restricts retrieval to documents filed under that scope
	// (a subdirectory of the corpus). Empty means the whole corpus.
	AgentScope string
}

// Retriever returns grounding text for a query. Implementations must degrade
// rather than fail hard: callers treat an error as "no context available".
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) (string, error)
}

// KeywordRetriever scores markdown chunks from a local corpus directory by
// keyword overlap with the query. It is deliberately simple: the corpus is
// curated and small, so term-frequency scoring is enough.
type KeywordRetriever struct {
	corpusDir string
	mu        sync.RWMutex
	cache     map[string][]chunk // per scope
}

type chunk struct {
	source string
	text   string
	terms  map[string]int
}

// NewKeywordRetriever creates a retriever over the given corpus directory.
func NewKeywordRetriever(corpusDir string) *KeywordRetriever {
	return &KeywordRetriever{
		corpusDir: corpusDir,
		cache:     make(map[string][]chunk),
	}
}

var termPattern = regexp.MustCompile(`[a-zA-Z0-9_]{3,}`)

// Retrieve returns up to MaxChunks best-matching chunks joined by blank
// lines. A missing or empty corpus yields an empty string, never an error.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = 3
	}
	if opts.MaxCharsPerChunk <= 0 {
		opts.MaxCharsPerChunk = 2000
	}

	chunks := r.loadChunks(opts.AgentScope)
	if len(chunks) == 0 {
		logging.KnowledgeWarn("Retrieve: no corpus chunks for scope %q", opts.AgentScope)
		return "", nil
	}

	queryTerms := extractTerms(query)
	if len(queryTerms) == 0 {
		return "", nil
	}

	type scored struct {
		idx   int
		score float64
	}
	results := make([]scored, 0, len(chunks))
	for i, c := range chunks {
		var score float64
		for term := range queryTerms {
			if n, ok := c.terms[term]; ok {
				score += float64(n)
			}
		}
		if score > 0 {
			results = append(results, scored{idx: i, score: score})
		}
	}
	if len(results) == 0 {
		return "", nil
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > opts.MaxChunks {
		results = results[:opts.MaxChunks]
	}

	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		text := chunks[res.idx].text
		if len(text) > opts.MaxCharsPerChunk {
			text = text[:opts.MaxCharsPerChunk]
		}
		b.WriteString(text)
	}

	logging.Knowledge("Retrieve: scope=%q query_terms=%d chunks=%d", opts.AgentScope, len(queryTerms), len(results))
	return b.String(), nil
}

// loadChunks reads and caches the chunked corpus for a scope.
func (r *KeywordRetriever) loadChunks(scope string) []chunk {
	r.mu.RLock()
	if cached, ok := r.cache[scope]; ok {
		r.mu.RUnlock()
		return cached
	}
	r.mu.RUnlock()

	dir := r.corpusDir
	if scope != "" {
		dir = filepath.Join(r.corpusDir, scope)
	}

	var chunks []chunk
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil // skip unreadable entries, keep walking
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		for _, part := range splitChunks(string(data)) {
			chunks = append(chunks, chunk{
				source: path,
				text:   part,
				terms:  extractTerms(part),
			})
		}
		return nil
	})

	r.mu.Lock()
	r.cache[scope] = chunks
	r.mu.Unlock()
	return chunks
}

// Invalidate drops the cached corpus, forcing a re-read on next retrieval.
func (r *KeywordRetriever) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string][]chunk)
	r.mu.Unlock()
}

// splitChunks breaks a document on blank-line paragraph boundaries, merging
// short paragraphs so chunks stay retrieval-sized.
func splitChunks(text string) []string {
	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		if current.Len() >= 400 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func extractTerms(text string) map[string]int {
	terms := make(map[string]int)
	for _, m := range termPattern.FindAllString(strings.ToLower(text), -1) {
		terms[m]++
	}
	return terms
}
