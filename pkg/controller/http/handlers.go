package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	knowsvc "github.com/cocoro-lab/cocoro/pkg/service/knowledge"
	"github.com/cocoro-lab/cocoro/pkg/usecase"
	"github.com/cocoro-lab/cocoro/pkg/utils/async"
	"github.com/cocoro-lab/cocoro/pkg/utils/errutil"
	"github.com/cocoro-lab/cocoro/pkg/utils/safe"
)

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(r.Context(), w, data)
}

func turnHandler(uc *usecase.UseCases) http.HandlerFunc {
	type request struct {
		OwnerID  string            `json:"owner_id"`
		Message  string            `json:"message"`
		Language types.LangCode    `json:"language,omitempty"`
		Recent   []model.Turn      `json:"recent,omitempty"`
		Vars     map[string]string `json:"vars,omitempty"`
	}
	type response struct {
		ComposedContext     string              `json:"composed_context"`
		Stage               types.StageID       `json:"stage"`
		Transitioned        bool                `json:"transitioned"`
		TransitionRationale string              `json:"transition_rationale,omitempty"`
		ToolRationale       string              `json:"tool_rationale,omitempty"`
		ToolsRun            []toolOutcomeRecord `json:"tools_run,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to decode turn request"), http.StatusBadRequest)
			return
		}
		if req.OwnerID == "" || req.Message == "" {
			errutil.HandleHTTP(r.Context(), w, goerr.New("owner_id and message are required"), http.StatusBadRequest)
			return
		}

		out, err := uc.HandleTurn(r.Context(), usecase.TurnInput{
			OwnerID:  req.OwnerID,
			Message:  req.Message,
			Language: req.Language,
			Recent:   req.Recent,
			Vars:     req.Vars,
		})
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
			return
		}

		respondJSON(w, r, http.StatusOK, response{
			ComposedContext:     out.ComposedContext,
			Stage:               out.StageID,
			Transitioned:        out.Transitioned,
			TransitionRationale: out.TransitionRationale,
			ToolRationale:       out.ToolRationale,
			ToolsRun:            toolOutcomeRecords(out.ToolOutcomes),
		})
	}
}

type toolOutcomeRecord struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func toolOutcomeRecords(outcomes []*model.ToolResult) []toolOutcomeRecord {
	records := make([]toolOutcomeRecord, 0, len(outcomes))
	for _, o := range outcomes {
		rec := toolOutcomeRecord{Tool: o.Tool, Success: o.Success}
		if o.Err != nil {
			rec.Error = o.Err.Error()
		}
		records = append(records, rec)
	}
	return records
}

// factsHandler accepts extracted facts and stores them asynchronously.
// The turn's response must never wait on memory writes, so this endpoint
// only validates the payload and returns 202.
func factsHandler(uc *usecase.UseCases) http.HandlerFunc {
	type request struct {
		Facts []usecase.ExtractedFact `json:"facts"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "ownerID")

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to decode facts request"), http.StatusBadRequest)
			return
		}

		async.Dispatch(r.Context(), func(ctx context.Context) error {
			_, err := uc.IngestFacts(ctx, ownerID, req.Facts)
			return err
		})

		respondJSON(w, r, http.StatusAccepted, map[string]any{
			"accepted": len(req.Facts),
		})
	}
}

func listMemoriesHandler(uc *usecase.UseCases) http.HandlerFunc {
	type memoryRecord struct {
		ID            model.MemoryID       `json:"id"`
		Category      types.MemoryCategory `json:"category"`
		Value         string               `json:"value"`
		Title         string               `json:"title,omitempty"`
		RelatedPerson string               `json:"related_person,omitempty"`
		Priority      int                  `json:"priority"`
		AccessCount   int                  `json:"access_count"`
		ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
		CreatedAt     time.Time            `json:"created_at"`
	}
	type response struct {
		Memories []memoryRecord `json:"memories"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "ownerID")
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				errutil.HandleHTTP(r.Context(), w, goerr.New("invalid limit", goerr.V("limit", raw)), http.StatusBadRequest)
				return
			}
			limit = n
		}

		memories, err := uc.ListMemories(r.Context(), ownerID, limit)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
			return
		}

		resp := response{Memories: make([]memoryRecord, len(memories))}
		for i, m := range memories {
			resp.Memories[i] = memoryRecord{
				ID:            m.ID,
				Category:      m.Category,
				Value:         m.Value,
				Title:         m.Title,
				RelatedPerson: m.RelatedPerson,
				Priority:      m.Priority,
				AccessCount:   m.AccessCount,
				ExpiresAt:     m.ExpiresAt,
				CreatedAt:     m.CreatedAt,
			}
		}
		respondJSON(w, r, http.StatusOK, resp)
	}
}

func forgetMemoriesHandler(uc *usecase.UseCases) http.HandlerFunc {
	type request struct {
		IDs []model.MemoryID `json:"ids"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "ownerID")

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to decode forget request"), http.StatusBadRequest)
			return
		}
		if len(req.IDs) == 0 {
			errutil.HandleHTTP(r.Context(), w, goerr.New("ids are required"), http.StatusBadRequest)
			return
		}

		if err := uc.ForgetMemories(r.Context(), ownerID, req.IDs); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
			return
		}
		respondJSON(w, r, http.StatusOK, map[string]any{"deleted": len(req.IDs)})
	}
}

func knowledgeSearchHandler(uc *usecase.UseCases) http.HandlerFunc {
	type request struct {
		Message       string         `json:"message"`
		Language      types.LangCode `json:"language,omitempty"`
		Category      string         `json:"category,omitempty"`
		Tags          []string       `json:"tags,omitempty"`
		Limit         int            `json:"limit,omitempty"`
		MinSimilarity float64        `json:"min_similarity,omitempty"`
	}
	type response struct {
		OptimizedQuery string               `json:"optimized_query"`
		Concepts       []string             `json:"concepts,omitempty"`
		Results        []knowledgeHitRecord `json:"results"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to decode search request"), http.StatusBadRequest)
			return
		}
		if req.Message == "" {
			errutil.HandleHTTP(r.Context(), w, goerr.New("message is required"), http.StatusBadRequest)
			return
		}

		out, err := uc.SearchKnowledge(r.Context(), knowsvc.SearchInput{
			Message:       req.Message,
			Language:      req.Language,
			Category:      req.Category,
			Tags:          req.Tags,
			Limit:         req.Limit,
			MinSimilarity: req.MinSimilarity,
		})
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
			return
		}

		respondJSON(w, r, http.StatusOK, response{
			OptimizedQuery: out.OptimizedQuery,
			Concepts:       out.Concepts,
			Results:        knowledgeHitRecords(out.Results),
		})
	}
}

type knowledgeHitRecord struct {
	ID         model.KnowledgeID `json:"id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Category   string            `json:"category,omitempty"`
	Source     string            `json:"source,omitempty"`
	Similarity float64           `json:"similarity"`
}

func knowledgeHitRecords(scored []*model.ScoredKnowledge) []knowledgeHitRecord {
	records := make([]knowledgeHitRecord, len(scored))
	for i, s := range scored {
		records[i] = knowledgeHitRecord{
			ID:         s.Entry.ID,
			Title:      s.Entry.Title,
			Body:       s.Entry.Body,
			Category:   s.Entry.Category,
			Source:     s.Entry.Source,
			Similarity: s.Similarity,
		}
	}
	return records
}

func knowledgeRelatedHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := model.KnowledgeID(chi.URLParam(r, "knowledgeID"))
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				errutil.HandleHTTP(r.Context(), w, goerr.New("invalid limit", goerr.V("limit", raw)), http.StatusBadRequest)
				return
			}
			limit = n
		}

		scored, err := uc.RelatedKnowledge(r.Context(), id, limit)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusNotFound)
			return
		}
		respondJSON(w, r, http.StatusOK, map[string]any{
			"results": knowledgeHitRecords(scored),
		})
	}
}

func knowledgeTranslationsHandler(uc *usecase.UseCases) http.HandlerFunc {
	type entryRecord struct {
		ID       model.KnowledgeID `json:"id"`
		Language types.LangCode    `json:"language"`
		Title    string            `json:"title"`
		Body     string            `json:"body"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		group := model.TranslationGroupID(chi.URLParam(r, "groupID"))

		entries, err := uc.KnowledgeTranslations(r.Context(), group)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
			return
		}

		records := make([]entryRecord, len(entries))
		for i, e := range entries {
			records[i] = entryRecord{
				ID:       e.ID,
				Language: e.Language,
				Title:    e.Title,
				Body:     e.Body,
			}
		}
		respondJSON(w, r, http.StatusOK, map[string]any{"entries": records})
	}
}
