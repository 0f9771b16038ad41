package knowledge_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	memrepo "github.com/cocoro-lab/cocoro/pkg/repository/memory"
	"github.com/cocoro-lab/cocoro/pkg/service/knowledge"
)

type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{`{"optimized_query":"","concepts":[]}`}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

// mockEmbedder maps texts to canned vectors; texts in failures always
// error.
type mockEmbedder struct {
	vectors  map[string][]float32
	failures map[string]bool
}

func (e *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.failures[text] {
		return nil, goerr.New("embedding provider down")
	}
	if v, ok := e.vectors[text]; ok {
		return padded(v), nil
	}
	return padded([]float32{0.5, 0.5, 0}), nil
}

func padded(v []float32) []float32 {
	out := make([]float32, model.EmbeddingDimension)
	copy(out, v)
	return out
}

func llmWithResponse(text string, err error) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					if err != nil {
						return nil, err
					}
					return &gollem.Response{Texts: []string{text}}, nil
				},
			}, nil
		},
	}
}

func seedEntries(t *testing.T, repo interfaces.KnowledgeRepository) map[string]*model.KnowledgeEntry {
	t.Helper()
	ctx := context.Background()

	seeds := []struct {
		key  string
		e    model.KnowledgeEntry
		vec  []float32
	}{
		{key: "listening", e: model.KnowledgeEntry{
			Language: "en", Title: "Empathic listening",
			Body: "Reflect the feeling before responding.", Category: "communication",
			Priority: 4, Active: true,
		}, vec: []float32{1, 0, 0}},
		{key: "requests", e: model.KnowledgeEntry{
			Language: "en", Title: "Requests vs demands",
			Body: "A request accepts no as an answer.", Category: "communication",
			Priority: 4, Active: true,
		}, vec: []float32{0.9, 0.1, 0}},
		{key: "far", e: model.KnowledgeEntry{
			Language: "en", Title: "Unrelated entry",
			Body: "Different topic entirely.", Category: "communication",
			Priority: 2, Active: true,
		}, vec: []float32{0, 0, 1}},
		{key: "ja", e: model.KnowledgeEntry{
			Language: "ja", Title: "共感的傾聴",
			Body: "応答の前に感情を映し返す。", Category: "communication",
			Priority: 4, Active: true,
		}, vec: []float32{1, 0, 0}},
	}

	created := make(map[string]*model.KnowledgeEntry, len(seeds))
	for _, s := range seeds {
		s.e.Embedding = padded(s.vec)
		e, err := repo.Create(ctx, &s.e)
		gt.NoError(t, err).Required()
		created[s.key] = e
	}
	return created
}

func TestSearch(t *testing.T) {
	t.Run("retrieves entries via optimized query", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		entries := seedEntries(t, repo)

		embedder := &mockEmbedder{vectors: map[string][]float32{
			"empathic listening techniques": {1, 0, 0},
		}}
		llm := llmWithResponse(`{"optimized_query":"empathic listening techniques","concepts":["empathy","listening"]}`, nil)

		svc, err := knowledge.New(repo, embedder, llm)
		gt.NoError(t, err).Required()

		out, err := svc.Search(context.Background(), knowledge.SearchInput{
			Message:  "My partner says I never really listen to them",
			Language: "en",
		})
		gt.NoError(t, err).Required()

		gt.Value(t, out.OptimizedQuery).Equal("empathic listening techniques")
		gt.Array(t, out.Concepts).Equal([]string{"empathy", "listening"})
		gt.Bool(t, len(out.Results) >= 1).True()
		gt.Value(t, out.Results[0].Entry.ID).Equal(entries["listening"].ID)
		for _, r := range out.Results {
			gt.Value(t, r.Entry.Language.String()).Equal("en")
			gt.Bool(t, r.Similarity >= knowledge.DefaultMinSimilarity).True()
		}
	})

	t.Run("optimization failure falls back to raw message", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		entries := seedEntries(t, repo)

		raw := "how do I listen with empathy"
		embedder := &mockEmbedder{vectors: map[string][]float32{
			raw: {1, 0, 0},
		}}
		llm := llmWithResponse("", goerr.New("completion quota exceeded"))

		svc, err := knowledge.New(repo, embedder, llm)
		gt.NoError(t, err).Required()

		out, err := svc.Search(context.Background(), knowledge.SearchInput{
			Message:  raw,
			Language: "en",
		})
		gt.NoError(t, err).Required()

		gt.Value(t, out.OptimizedQuery).Equal(raw)
		gt.Array(t, out.Concepts).Length(0)
		gt.Bool(t, len(out.Results) >= 1).True()
		gt.Value(t, out.Results[0].Entry.ID).Equal(entries["listening"].ID)
	})

	t.Run("malformed optimization response falls back to raw message", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		seedEntries(t, repo)

		raw := "how do I listen with empathy"
		embedder := &mockEmbedder{vectors: map[string][]float32{
			raw: {1, 0, 0},
		}}
		llm := llmWithResponse("this is not json", nil)

		svc, err := knowledge.New(repo, embedder, llm)
		gt.NoError(t, err).Required()

		out, err := svc.Search(context.Background(), knowledge.SearchInput{
			Message:  raw,
			Language: "en",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, out.OptimizedQuery).Equal(raw)
	})

	t.Run("embedding outage on optimized query retries with raw message", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		entries := seedEntries(t, repo)

		raw := "how do I listen with empathy"
		embedder := &mockEmbedder{
			vectors:  map[string][]float32{raw: {1, 0, 0}},
			failures: map[string]bool{"empathic listening techniques": true},
		}
		llm := llmWithResponse(`{"optimized_query":"empathic listening techniques","concepts":["empathy"]}`, nil)

		svc, err := knowledge.New(repo, embedder, llm)
		gt.NoError(t, err).Required()

		out, err := svc.Search(context.Background(), knowledge.SearchInput{
			Message:  raw,
			Language: "en",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, out.OptimizedQuery).Equal(raw)
		gt.Bool(t, len(out.Results) >= 1).True()
		gt.Value(t, out.Results[0].Entry.ID).Equal(entries["listening"].ID)
	})

	t.Run("total embedding outage fails the operation", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		seedEntries(t, repo)

		raw := "how do I listen with empathy"
		embedder := &mockEmbedder{failures: map[string]bool{
			raw: true,
			"empathic listening techniques": true,
		}}
		llm := llmWithResponse(`{"optimized_query":"empathic listening techniques","concepts":[]}`, nil)

		svc, err := knowledge.New(repo, embedder, llm)
		gt.NoError(t, err).Required()

		_, err = svc.Search(context.Background(), knowledge.SearchInput{
			Message:  raw,
			Language: "en",
		})
		gt.Value(t, err).NotNil()
	})

	t.Run("weak matches are filtered by minimum similarity", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		entries := seedEntries(t, repo)

		raw := "something about listening"
		embedder := &mockEmbedder{vectors: map[string][]float32{
			raw: {1, 0, 0},
		}}
		llm := llmWithResponse("", goerr.New("skip optimization"))

		svc, err := knowledge.New(repo, embedder, llm)
		gt.NoError(t, err).Required()

		out, err := svc.Search(context.Background(), knowledge.SearchInput{
			Message:  raw,
			Language: "en",
			Limit:    10,
		})
		gt.NoError(t, err).Required()

		for _, r := range out.Results {
			gt.Value(t, r.Entry.ID).NotEqual(entries["far"].ID)
		}
	})

	t.Run("mutating a returned result set never affects later searches", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		entries := seedEntries(t, repo)

		raw := "how do I listen with empathy"
		embedder := &mockEmbedder{vectors: map[string][]float32{
			"empathic listening techniques": {1, 0, 0},
		}}
		llm := llmWithResponse(`{"optimized_query":"empathic listening techniques","concepts":["empathy"]}`, nil)

		svc, err := knowledge.New(repo, embedder, llm)
		gt.NoError(t, err).Required()

		input := knowledge.SearchInput{Message: raw, Language: "en"}
		first, err := svc.Search(context.Background(), input)
		gt.NoError(t, err).Required()
		gt.Bool(t, len(first.Results) >= 1).True()

		// Let the cache admit the entry, then vandalize the caller's copy.
		time.Sleep(20 * time.Millisecond)
		first.Results[0] = nil
		first.Results = first.Results[:0]
		first.Concepts = nil

		second, err := svc.Search(context.Background(), input)
		gt.NoError(t, err).Required()
		gt.Bool(t, len(second.Results) >= 1).True()
		gt.Value(t, second.Results[0].Entry.ID).Equal(entries["listening"].ID)
		gt.Array(t, second.Concepts).Equal([]string{"empathy"})
	})

	t.Run("rejects empty message", func(t *testing.T) {
		svc, err := knowledge.New(memrepo.New().Knowledge(), &mockEmbedder{}, &mockLLMClient{})
		gt.NoError(t, err).Required()

		_, err = svc.Search(context.Background(), knowledge.SearchInput{Message: "  "})
		gt.Value(t, err).NotNil()
	})
}

func TestRelated(t *testing.T) {
	t.Run("surfaces nearby entries excluding itself", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		entries := seedEntries(t, repo)

		svc, err := knowledge.New(repo, &mockEmbedder{}, &mockLLMClient{})
		gt.NoError(t, err).Required()

		related, err := svc.Related(context.Background(), entries["listening"].ID, 5)
		gt.NoError(t, err).Required()

		gt.Bool(t, len(related) >= 1).True()
		for _, r := range related {
			gt.Value(t, r.Entry.ID).NotEqual(entries["listening"].ID)
			gt.Value(t, r.Entry.Language.String()).Equal("en")
		}
		gt.Value(t, related[0].Entry.ID).Equal(entries["requests"].ID)
	})

	t.Run("entry without embedding has no related set", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		ctx := context.Background()

		bare, err := repo.Create(ctx, &model.KnowledgeEntry{
			Language: "en", Title: "No embedding", Body: "Body.",
			Category: "communication", Priority: 1, Active: true,
		})
		gt.NoError(t, err).Required()

		svc, err := knowledge.New(repo, &mockEmbedder{}, &mockLLMClient{})
		gt.NoError(t, err).Required()

		related, err := svc.Related(ctx, bare.ID, 5)
		gt.NoError(t, err).Required()
		gt.Array(t, related).Length(0)
	})
}

func TestTranslations(t *testing.T) {
	t.Run("returns active variants in the group", func(t *testing.T) {
		repo := memrepo.New().Knowledge()
		ctx := context.Background()

		en, err := repo.Create(ctx, &model.KnowledgeEntry{
			Language: "en", Title: "Empathic listening", Body: "Body.",
			Category: "communication", Priority: 4, Active: true,
		})
		gt.NoError(t, err).Required()

		_, err = repo.Create(ctx, &model.KnowledgeEntry{
			TranslationGroup: en.TranslationGroup,
			Language:         "ja", Title: "共感的傾聴", Body: "本文。",
			Category: "communication", Priority: 4, Active: true,
		})
		gt.NoError(t, err).Required()

		svc, err := knowledge.New(repo, &mockEmbedder{}, &mockLLMClient{})
		gt.NoError(t, err).Required()

		variants, err := svc.Translations(ctx, en.TranslationGroup)
		gt.NoError(t, err).Required()
		gt.Array(t, variants).Length(2)
	})
}
