package usecase

import (
	"context"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	knowsvc "github.com/cocoro-lab/cocoro/pkg/service/knowledge"
)

// SearchKnowledge looks up curated entries relevant to a message.
func (u *UseCases) SearchKnowledge(ctx context.Context, input knowsvc.SearchInput) (*knowsvc.SearchOutput, error) {
	return u.knowledge.Search(ctx, input)
}

// RelatedKnowledge returns entries semantically near an existing one.
func (u *UseCases) RelatedKnowledge(ctx context.Context, id model.KnowledgeID, limit int) ([]*model.ScoredKnowledge, error) {
	return u.knowledge.Related(ctx, id, limit)
}

// KnowledgeTranslations returns the active language variants of a concept.
func (u *UseCases) KnowledgeTranslations(ctx context.Context, group model.TranslationGroupID) ([]*model.KnowledgeEntry, error) {
	return u.knowledge.Translations(ctx, group)
}
