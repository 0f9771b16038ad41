package core

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/cocoro-lab/cocoro/pkg/agent/tool"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	"github.com/cocoro-lab/cocoro/pkg/service/knowledge"
)

// retrieveKnowledgeTool searches the curated reference library. The
// knowledge service derives an optimized query from the message itself.
type retrieveKnowledgeTool struct {
	knowledge *knowledge.Service
	lang      types.LangCode
}

func (t *retrieveKnowledgeTool) Spec() tool.Spec {
	return tool.Spec{
		Name:        "core__retrieve_knowledge",
		Description: "Look up curated communication guidance relevant to the message. Use when the situation calls for a technique or concept the response should lean on.",
		Parameters: map[string]*gollem.Parameter{
			"message": {
				Type:        gollem.TypeString,
				Description: "The message to find guidance for",
				Required:    true,
			},
			"category": {
				Type:        gollem.TypeString,
				Description: "Optional category to narrow the search",
			},
		},
		Independent: true,
	}
}

func (t *retrieveKnowledgeTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	message, _ := args["message"].(string)
	if message == "" {
		return nil, goerr.New("message is required")
	}
	category, _ := args["category"].(string)

	tool.Update(ctx, "Retrieving knowledge...")

	out, err := t.knowledge.Search(ctx, knowledge.SearchInput{
		Message:  message,
		Language: t.lang,
		Category: category,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to retrieve knowledge")
	}

	entries := make([]map[string]any, 0, len(out.Results))
	for _, r := range out.Results {
		entries = append(entries, map[string]any{
			"id":         string(r.Entry.ID),
			"title":      r.Entry.Title,
			"body":       r.Entry.Body,
			"category":   r.Entry.Category,
			"similarity": r.Similarity,
		})
	}

	return map[string]any{
		"optimized_query": out.OptimizedQuery,
		"concepts":        out.Concepts,
		"entries":         entries,
	}, nil
}
