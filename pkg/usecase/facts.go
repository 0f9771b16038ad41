package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	memsvc "github.com/cocoro-lab/cocoro/pkg/service/memory"
	"github.com/cocoro-lab/cocoro/pkg/utils/logging"
)

// ExtractedFact is one fact pulled from a turn by the surrounding
// application, to be remembered after the response is produced.
type ExtractedFact struct {
	Value         string               `json:"value"`
	Title         string               `json:"title,omitempty"`
	RelatedPerson string               `json:"related_person,omitempty"`
	Confidence    types.ConfidenceTier `json:"confidence,omitempty"`
	SourceRef     string               `json:"source_ref,omitempty"`
}

// IngestFacts writes extracted facts into the memory store. It runs
// after the turn's response, so new facts never retroactively alter the
// prompt that produced them. One fact's failure never blocks the rest.
func (u *UseCases) IngestFacts(ctx context.Context, ownerID string, facts []ExtractedFact) ([]*model.Memory, error) {
	if ownerID == "" {
		return nil, goerr.New("owner ID is required")
	}

	stored := make([]*model.Memory, 0, len(facts))
	for _, fact := range facts {
		mem, err := u.memories.Create(ctx, ownerID, memsvc.CreateInput{
			Value:         fact.Value,
			Title:         fact.Title,
			RelatedPerson: fact.RelatedPerson,
			Confidence:    fact.Confidence,
			SourceRef:     fact.SourceRef,
		})
		if err != nil {
			logging.From(ctx).Warn("failed to ingest fact",
				"ownerID", ownerID, "value", fact.Value, "error", err)
			continue
		}
		stored = append(stored, mem)
	}

	return stored, nil
}
