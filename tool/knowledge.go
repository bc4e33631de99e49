package tool

import (
	"context"
	"fmt"

	"github.com/educaia/agenthub/core"
)

// KnowledgeSearcher retrieves tenant-scoped documents for a free-text query.
// The knowledge package provides SQLite and in-memory implementations.
type KnowledgeSearcher interface {
	Search(ctx context.Context, tenantID, query string, limit int) ([]core.SearchResult, error)
}

// knowledgeSearchDefaultLimit bounds result sets when the model omits limit.
const knowledgeSearchDefaultLimit = 5

// NewKnowledgeSearchTool builds the knowledge_search tool backed by the given
// searcher. Results include source references so answers can cite them.
func NewKnowledgeSearchTool(searcher KnowledgeSearcher) *FunctionTool {
	return NewFunctionTool(
		"knowledge_search",
		"Search the school's knowledge base for articles relevant to a question. Returns the most relevant passages with their sources.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Free-text search query",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of passages to return",
				},
			},
			"required": []string{"query"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			limit := knowledgeSearchDefaultLimit
			if v, ok := args["limit"].(float64); ok && v > 0 {
				limit = int(v)
			}

			results, err := searcher.Search(toolCtx.Context(), toolCtx.TenantID(), query, limit)
			if err != nil {
				return nil, fmt.Errorf("knowledge search failed: %w", err)
			}
			return map[string]any{
				"query":   query,
				"results": results,
				"count":   len(results),
			}, nil
		},
	)
}
