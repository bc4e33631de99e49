// Package knowledge implements the tenant-scoped document index backing the
// knowledge search tool. Documents are plain text with optional metadata;
// search is keyword-based with a simple relevance score.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/educaia/agenthub/core"
)

// Document is a unit of ingested knowledge, scoped to one tenant.
type Document struct {
	ID       string
	TenantID string
	Content  string
	Source   string
	Metadata map[string]any
}

// InMemoryIndex is a process-local document index.
type InMemoryIndex struct {
	mu   sync.RWMutex
	docs []Document
}

// NewInMemoryIndex constructs an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{}
}

// Add ingests a document. An empty ID is filled in.
func (i *InMemoryIndex) Add(_ context.Context, doc Document) error {
	if doc.ID == "" {
		doc.ID = core.NewID()
	}
	i.mu.Lock()
	i.docs = append(i.docs, doc)
	i.mu.Unlock()
	return nil
}

// Search returns up to limit documents of the tenant matching the query,
// ordered by descending score. A query that matches nothing yields an empty
// slice, not an error.
func (i *InMemoryIndex) Search(_ context.Context, tenantID, query string, limit int) ([]core.SearchResult, error) {
	terms := tokenize(query)

	i.mu.RLock()
	defer i.mu.RUnlock()

	var results []core.SearchResult
	for _, doc := range i.docs {
		if doc.TenantID != tenantID {
			continue
		}
		score := scoreDocument(doc.Content, terms)
		if score == 0 {
			continue
		}
		results = append(results, core.SearchResult{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    score,
			Source:   doc.Source,
			Metadata: doc.Metadata,
		})
	}

	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func sortResults(results []core.SearchResult) {
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	var terms []string
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// scoreDocument counts term occurrences, weighting distinct term coverage
// above raw frequency.
func scoreDocument(content string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	var matched, occurrences int
	for _, term := range terms {
		n := strings.Count(lower, term)
		if n > 0 {
			matched++
			occurrences += n
		}
	}
	if matched == 0 {
		return 0
	}
	coverage := float64(matched) / float64(len(terms))
	return coverage*10 + float64(occurrences)
}
