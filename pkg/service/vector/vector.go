package vector

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
)

// Embedder converts text into a fixed-dimension vector. Both the memory
// and knowledge services share one embedder so their vectors live in the
// same space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Adapter wraps a gollem LLM client as an Embedder.
type Adapter struct {
	llmClient gollem.LLMClient
}

var _ Embedder = &Adapter{}

func New(llmClient gollem.LLMClient) (*Adapter, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	return &Adapter{llmClient: llmClient}, nil
}

// Embed generates an embedding vector for the given text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, goerr.New("text is required for embedding")
	}

	embeddings, err := a.llmClient.GenerateEmbedding(ctx, model.EmbeddingDimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}

	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	// Convert float64 to float32
	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	return result, nil
}
