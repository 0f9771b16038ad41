package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"golang.org/x/sync/singleflight"

	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	"github.com/cocoro-lab/cocoro/pkg/service/vector"
	"github.com/cocoro-lab/cocoro/pkg/utils/logging"
)

const (
	// DefaultMinSimilarity filters out weakly related entries.
	DefaultMinSimilarity = 0.7

	defaultLimit = 5

	cacheTTL = 5 * time.Minute
)

// Service retrieves curated knowledge entries by meaning. Search results
// are cached briefly since curators update entries far less often than
// owners converse.
type Service struct {
	repo      interfaces.KnowledgeRepository
	embedder  vector.Embedder
	llmClient gollem.LLMClient
	cache     *ristretto.Cache
	group     singleflight.Group
}

func New(repo interfaces.KnowledgeRepository, embedder vector.Embedder, llmClient gollem.LLMClient) (*Service, error) {
	if repo == nil {
		return nil, goerr.New("knowledge repository is required")
	}
	if embedder == nil {
		return nil, goerr.New("embedder is required")
	}
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create knowledge cache")
	}

	return &Service{
		repo:      repo,
		embedder:  embedder,
		llmClient: llmClient,
		cache:     cache,
	}, nil
}

// SearchInput narrows a knowledge lookup. Message is the raw owner
// message; the service derives an optimized query from it.
type SearchInput struct {
	Message       string
	Language      types.LangCode
	Category      string
	Tags          []string
	Limit         int
	MinSimilarity float64
}

// SearchOutput carries scored entries plus the derived query and concept
// labels, so callers can see how the lookup was interpreted.
type SearchOutput struct {
	Results        []*model.ScoredKnowledge
	OptimizedQuery string
	Concepts       []string
}

// clone detaches the slice headers so callers can reorder or truncate
// their copy without corrupting the cached entry.
func (o *SearchOutput) clone() *SearchOutput {
	out := *o
	out.Results = append([]*model.ScoredKnowledge(nil), o.Results...)
	out.Concepts = append([]string(nil), o.Concepts...)
	return &out
}

// Search runs the retrieval pipeline: derive an optimized query from the
// message, embed it, and query the store with language and filter scope.
// A failed optimization pass degrades to the raw message as the query.
func (s *Service) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, goerr.New("message is required")
	}

	lang := input.Language.Normalize()
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	minSim := input.MinSimilarity
	if minSim <= 0 {
		minSim = DefaultMinSimilarity
	}

	cacheKey := searchCacheKey(input.Message, lang, input.Category, input.Tags, limit, minSim)
	if cached, ok := s.cache.Get(cacheKey); ok {
		if out, ok := cached.(*SearchOutput); ok {
			return out.clone(), nil
		}
	}

	// Concurrent identical searches share one pipeline run.
	result, err, _ := s.group.Do(cacheKey, func() (any, error) {
		return s.search(ctx, input, lang, limit, minSim, cacheKey)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SearchOutput).clone(), nil
}

func (s *Service) search(ctx context.Context, input SearchInput, lang types.LangCode, limit int, minSim float64, cacheKey string) (*SearchOutput, error) {
	query, concepts := s.optimizeQuery(ctx, input.Message, lang)

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil && query != input.Message {
		logging.From(ctx).Warn("failed to embed optimized query, retrying with raw message",
			"query", query, "error", err)
		query, concepts = input.Message, nil
		embedding, err = s.embedder.Embed(ctx, query)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed knowledge query", goerr.V("query", query))
	}

	scored, err := s.repo.FindByEmbedding(ctx, interfaces.KnowledgeFilter{
		Language: lang,
		Category: input.Category,
		Tags:     input.Tags,
	}, embedding, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search knowledge entries")
	}

	results := make([]*model.ScoredKnowledge, 0, len(scored))
	for _, r := range scored {
		if r.Similarity >= minSim {
			results = append(results, r)
		}
	}

	out := &SearchOutput{
		Results:        results,
		OptimizedQuery: query,
		Concepts:       concepts,
	}
	s.cache.SetWithTTL(cacheKey, out, 1, cacheTTL)

	return out, nil
}

func searchCacheKey(message string, lang types.LangCode, category string, tags []string, limit int, minSim float64) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%.3f", message, lang, category, strings.Join(tags, ","), limit, minSim)
}

type optimizedQueryResponse struct {
	OptimizedQuery string   `json:"optimized_query"`
	Concepts       []string `json:"concepts"`
}

// optimizeQuery compresses the raw message into a search query plus
// concept labels via a lightweight completion pass. Any failure falls
// back to the raw message.
func (s *Service) optimizeQuery(ctx context.Context, message string, lang types.LangCode) (string, []string) {
	session, err := s.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(queryResponseSchema()),
		gollem.WithSessionSystemPrompt(queryOptimizerPrompt(lang)),
	)
	if err != nil {
		logging.From(ctx).Warn("failed to create query optimization session", "error", err)
		return message, nil
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(message))
	if err != nil {
		logging.From(ctx).Warn("query optimization failed, using raw message", "error", err)
		return message, nil
	}
	if len(resp.Texts) == 0 {
		return message, nil
	}

	var parsed optimizedQueryResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &parsed); err != nil {
		logging.From(ctx).Warn("malformed query optimization response, using raw message",
			"response", resp.Texts[0], "error", err)
		return message, nil
	}
	if strings.TrimSpace(parsed.OptimizedQuery) == "" {
		return message, parsed.Concepts
	}

	return parsed.OptimizedQuery, parsed.Concepts
}

func queryOptimizerPrompt(lang types.LangCode) string {
	var sb strings.Builder
	sb.WriteString("You compress a coaching conversation message into a short search query for a reference library.\n\n")
	sb.WriteString("## Instructions:\n\n")
	sb.WriteString("1. Extract the underlying topic the person needs help with, not the surface phrasing.\n")
	sb.WriteString("2. Provide optimized_query: a concise search phrase in the same language as the message.\n")
	sb.WriteString("3. Provide concepts: up to 5 short labels for the communication concepts involved.\n")
	fmt.Fprintf(&sb, "4. The library language is %q; keep the query in that language when possible.\n", lang)
	return sb.String()
}

func queryResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "OptimizedQueryResponse",
		Description: "A compressed search query with extracted concept labels",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"optimized_query": {
				Type:        gollem.TypeString,
				Description: "A concise search phrase capturing the message topic",
				Required:    true,
			},
			"concepts": {
				Type:        gollem.TypeArray,
				Description: "Short labels for the communication concepts involved",
				Items:       &gollem.Parameter{Type: gollem.TypeString},
				Required:    true,
			},
		},
	}
}

// Translations returns all active language variants sharing the entry's
// translation group.
func (s *Service) Translations(ctx context.Context, group model.TranslationGroupID) ([]*model.KnowledgeEntry, error) {
	entries, err := s.repo.ListByTranslationGroup(ctx, group)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list translation group", goerr.V("group", group))
	}
	return entries, nil
}

// Related surfaces active same-language entries near the given one,
// using the entry's own embedding rather than a text query. The entry
// never appears in its own related set.
func (s *Service) Related(ctx context.Context, id model.KnowledgeID, limit int) ([]*model.ScoredKnowledge, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get knowledge entry", goerr.V("id", id))
	}
	if len(entry.Embedding) == 0 {
		return nil, nil
	}

	if limit <= 0 {
		limit = defaultLimit
	}

	// Fetch one extra since the entry matches itself maximally.
	scored, err := s.repo.FindByEmbedding(ctx, interfaces.KnowledgeFilter{
		Language: entry.Language,
	}, entry.Embedding, limit+1)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search related entries", goerr.V("id", id))
	}

	results := make([]*model.ScoredKnowledge, 0, limit)
	for _, r := range scored {
		if r.Entry.ID == id {
			continue
		}
		results = append(results, r)
		if len(results) >= limit {
			break
		}
	}

	return results, nil
}
