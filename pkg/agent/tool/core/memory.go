package core

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/cocoro-lab/cocoro/pkg/agent/tool"
	"github.com/cocoro-lab/cocoro/pkg/service/memory"
)

const (
	defaultMemorySearchLimit = 5

	// memorySimilarityFloor drops hits too weak to be worth surfacing
	// in the turn context.
	memorySimilarityFloor = 0.5
)

// searchMemoryTool looks up the owner's memories by semantic similarity.
type searchMemoryTool struct {
	memories *memory.Service
	ownerID  string
}

func (t *searchMemoryTool) Spec() tool.Spec {
	return tool.Spec{
		Name:        "core__search_memory",
		Description: "Search what is remembered about this person using semantic similarity. Use when the message refers to earlier conversations, people, or facts the person expects you to know.",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "What to look up, phrased as a topic (e.g. 'hobbies', 'conflict with manager')",
				Required:    true,
			},
			"limit": {
				Type:        gollem.TypeInteger,
				Description: fmt.Sprintf("Maximum entries to return (default %d)", defaultMemorySearchLimit),
			},
		},
		Independent: true,
	}
}

func (t *searchMemoryTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, goerr.New("query is required")
	}

	limit := defaultMemorySearchLimit
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	tool.Update(ctx, "Searching memories...")

	results, err := t.memories.Search(ctx, t.ownerID, query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories", goerr.V("query", query))
	}

	rows := make([]map[string]any, 0, len(results))
	for _, r := range results {
		if r.Similarity < memorySimilarityFloor {
			continue
		}
		rows = append(rows, map[string]any{
			"id":           string(r.Memory.ID),
			"value":        r.Memory.Value,
			"category":     string(r.Memory.Category),
			"similarity":   r.Similarity,
			"access_count": r.Memory.AccessCount,
		})
	}

	return map[string]any{
		"query":    query,
		"memories": rows,
	}, nil
}
