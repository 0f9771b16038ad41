package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	server "github.com/cocoro-lab/cocoro/pkg/controller/http"
	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	memrepo "github.com/cocoro-lab/cocoro/pkg/repository/memory"
	knowsvc "github.com/cocoro-lab/cocoro/pkg/service/knowledge"
	memsvc "github.com/cocoro-lab/cocoro/pkg/service/memory"
	"github.com/cocoro-lab/cocoro/pkg/service/stage"
	"github.com/cocoro-lab/cocoro/pkg/usecase"
)

const noSwitchEval = `{"should_switch":false,"confidence":0,"rationale":"topic unchanged","current_stage_complete":false}`
const emptySelection = `{"tool_calls":[],"rationale":"no tools needed"}`

type queueLLMClient struct {
	mu        sync.Mutex
	responses []string
}

func (c *queueLLMClient) next() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.responses) == 0 {
		return "", goerr.New("no canned response left")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func (c *queueLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return &queueLLMSession{client: c}, nil
}

func (c *queueLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

type queueLLMSession struct {
	client *queueLLMClient
}

func (s *queueLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	text, err := s.client.next()
	if err != nil {
		return nil, err
	}
	return &gollem.Response{Texts: []string{text}}, nil
}

func (s *queueLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *queueLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *queueLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *queueLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *queueLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *queueLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockEmbedder struct {
	vectors map[string][]float32
}

func (e *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, ok := e.vectors[text]
	if !ok {
		v = []float32{0.5, 0.5, 0}
	}
	out := make([]float32, model.EmbeddingDimension)
	copy(out, v)
	return out, nil
}

func newServer(t *testing.T, llm *queueLLMClient, embedder *mockEmbedder) (*server.Server, interfaces.Repository) {
	t.Helper()
	repo := memrepo.New()
	if embedder == nil {
		embedder = &mockEmbedder{}
	}

	memories, err := memsvc.New(repo.Memory(), embedder)
	gt.NoError(t, err).Required()

	knowledge, err := knowsvc.New(repo.Knowledge(), embedder, llm)
	gt.NoError(t, err).Required()

	machine, err := stage.NewMachine(stage.DefaultCatalog(), llm, repo.Session(), memories)
	gt.NoError(t, err).Required()

	uc, err := usecase.New(repo, machine, memories, knowledge, llm)
	gt.NoError(t, err).Required()

	srv, err := server.New(uc)
	gt.NoError(t, err).Required()
	return srv, repo
}

func doJSON(t *testing.T, srv *server.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		gt.NoError(t, err).Required()
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, &queueLLMClient{}, nil)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)
	gt.Bool(t, strings.Contains(rec.Body.String(), "ok")).True()
}

func TestTurnEndpoint(t *testing.T) {
	t.Run("returns the composed context and stage", func(t *testing.T) {
		llm := &queueLLMClient{responses: []string{noSwitchEval, emptySelection}}
		srv, _ := newServer(t, llm, nil)

		rec := doJSON(t, srv, http.MethodPost, "/api/v1/turn", map[string]any{
			"owner_id": "owner-1",
			"message":  "hello",
			"vars":     map[string]string{"tone": "warm"},
		})
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			ComposedContext string `json:"composed_context"`
			Stage           string `json:"stage"`
			Transitioned    bool   `json:"transitioned"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Value(t, resp.Stage).Equal("orientation")
		gt.Bool(t, resp.Transitioned).False()
		gt.Bool(t, strings.Contains(resp.ComposedContext, "warm")).True()
	})

	t.Run("rejects a request without a message", func(t *testing.T) {
		srv, _ := newServer(t, &queueLLMClient{}, nil)

		rec := doJSON(t, srv, http.MethodPost, "/api/v1/turn", map[string]any{
			"owner_id": "owner-1",
		})
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		srv, _ := newServer(t, &queueLLMClient{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/turn", strings.NewReader("not json"))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})
}

func TestFactsEndpoint(t *testing.T) {
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"I like hiking": {1, 0, 0},
	}}
	srv, repo := newServer(t, &queueLLMClient{}, embedder)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/owners/owner-1/facts", map[string]any{
		"facts": []map[string]any{
			{"value": "I like hiking", "source_ref": "turn-1"},
		},
	})
	gt.Value(t, rec.Code).Equal(http.StatusAccepted)

	// Ingestion is dispatched off-request, so wait for it to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		memories, err := repo.Memory().List(context.Background(), "owner-1", 0)
		gt.NoError(t, err).Required()
		if len(memories) == 1 {
			gt.Value(t, memories[0].Value).Equal("I like hiking")
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fact was not ingested in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"I like hiking": {1, 0, 0},
	}}
	llm := &queueLLMClient{}
	srv, repo := newServer(t, llm, embedder)
	ctx := context.Background()

	memories, err := memsvc.New(repo.Memory(), embedder)
	gt.NoError(t, err).Required()
	stored, err := memories.Create(ctx, "owner-1", memsvc.CreateInput{Value: "I like hiking"})
	gt.NoError(t, err).Required()

	t.Run("lists the owner's memories", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/owners/owner-1/memories", nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Memories []struct {
				ID    string `json:"id"`
				Value string `json:"value"`
			} `json:"memories"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Array(t, resp.Memories).Length(1)
		gt.Value(t, resp.Memories[0].Value).Equal("I like hiking")
	})

	t.Run("other owners see nothing", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/owners/owner-2/memories", nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Memories []any `json:"memories"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Array(t, resp.Memories).Length(0)
	})

	t.Run("rejects an invalid limit", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/owners/owner-1/memories?limit=abc", nil)
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("delete removes the memory", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodDelete, "/api/v1/owners/owner-1/memories", map[string]any{
			"ids": []string{string(stored.ID)},
		})
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		left, err := repo.Memory().List(ctx, "owner-1", 0)
		gt.NoError(t, err).Required()
		gt.Array(t, left).Length(0)
	})

	t.Run("delete without ids is rejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodDelete, "/api/v1/owners/owner-1/memories", map[string]any{})
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})
}

func TestKnowledgeEndpoints(t *testing.T) {
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"how to listen": {1, 0, 0},
	}}
	llm := &queueLLMClient{responses: []string{
		`{"optimized_query":"how to listen","concepts":["listening"]}`,
	}}
	srv, repo := newServer(t, llm, embedder)
	ctx := context.Background()

	group := model.NewTranslationGroupID()
	seed := func(lang types.LangCode, title string, vec []float32) *model.KnowledgeEntry {
		emb := make([]float32, model.EmbeddingDimension)
		copy(emb, vec)
		entry, err := repo.Knowledge().Create(ctx, &model.KnowledgeEntry{
			TranslationGroup: group,
			Language:         lang,
			Title:            title,
			Body:             fmt.Sprintf("%s body", title),
			Embedding:        emb,
			Category:         "communication",
			Active:           true,
		})
		gt.NoError(t, err).Required()
		return entry
	}
	english := seed("en", "Listening", []float32{1, 0, 0})
	seed("en", "Requests", []float32{0.9, 0.1, 0})
	seed("ja", "傾聴", []float32{1, 0, 0})

	t.Run("search returns scored entries", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/knowledge/search", map[string]any{
			"message":  "they never listen to me",
			"language": "en",
		})
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			OptimizedQuery string `json:"optimized_query"`
			Results        []struct {
				Title      string  `json:"title"`
				Similarity float64 `json:"similarity"`
			} `json:"results"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Value(t, resp.OptimizedQuery).Equal("how to listen")
		gt.Value(t, len(resp.Results) >= 1).Equal(true)
		gt.Value(t, resp.Results[0].Title).Equal("Listening")
	})

	t.Run("search without a message is rejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/knowledge/search", map[string]any{})
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("related excludes the entry itself", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/knowledge/%s/related", english.ID)
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Results []struct {
				Title string `json:"title"`
			} `json:"results"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		for _, r := range resp.Results {
			gt.Value(t, r.Title).NotEqual("Listening")
		}
	})

	t.Run("translations lists language variants", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/knowledge/groups/%s", group)
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Entries []struct {
				Language string `json:"language"`
			} `json:"entries"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Array(t, resp.Entries).Length(3)
	})
}
