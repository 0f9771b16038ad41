package core

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/cocoro-lab/cocoro/pkg/agent/tool"
)

// extractConceptsTool pulls a structured observation, feelings, needs,
// and request out of one message, validated against the controlled
// vocabularies.
type extractConceptsTool struct {
	llmClient gollem.LLMClient
}

func (t *extractConceptsTool) Spec() tool.Spec {
	return tool.Spec{
		Name:        "core__extract_concepts",
		Description: "Break one message down into an observation, the feelings and needs it expresses, and any implied request. Use when the person describes a charged situation and the response should name feelings and needs explicitly.",
		Parameters: map[string]*gollem.Parameter{
			"message": {
				Type:        gollem.TypeString,
				Description: "The message to analyze",
				Required:    true,
			},
		},
		Independent: true,
	}
}

type conceptExtraction struct {
	Observation string   `json:"observation"`
	Feelings    []string `json:"feelings"`
	Needs       []string `json:"needs"`
	Request     string   `json:"request"`
}

func (t *extractConceptsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	message, _ := args["message"].(string)
	if message == "" {
		return nil, goerr.New("message is required")
	}

	tool.Update(ctx, "Extracting concepts...")

	session, err := t.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(conceptSchema()),
		gollem.WithSessionSystemPrompt(conceptPrompt()),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create concept extraction session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(message))
	if err != nil {
		return nil, goerr.Wrap(err, "concept extraction failed")
	}
	if len(resp.Texts) == 0 {
		return nil, goerr.New("concept extraction returned no output")
	}

	var parsed conceptExtraction
	if err := json.Unmarshal([]byte(resp.Texts[0]), &parsed); err != nil {
		return nil, goerr.Wrap(err, "malformed concept extraction response",
			goerr.V("response", resp.Texts[0]))
	}

	return map[string]any{
		"observation": parsed.Observation,
		"feelings":    filterVocabulary(parsed.Feelings, feelingSet),
		"needs":       filterVocabulary(parsed.Needs, needSet),
		"request":     parsed.Request,
	}, nil
}

func conceptPrompt() string {
	var sb strings.Builder
	sb.WriteString("You analyze one message from a coaching conversation.\n\n")
	sb.WriteString("## Instructions:\n\n")
	sb.WriteString("1. observation: what factually happened, stripped of judgement, one sentence.\n")
	sb.WriteString("2. feelings: the emotions the person expresses. Use only these words: ")
	sb.WriteString(strings.Join(feelingVocabulary, ", "))
	sb.WriteString(".\n")
	sb.WriteString("3. needs: the underlying needs behind those feelings. Use only these words: ")
	sb.WriteString(strings.Join(needVocabulary, ", "))
	sb.WriteString(".\n")
	sb.WriteString("4. request: what the person seems to want to ask of someone, or empty.\n")
	return sb.String()
}

func conceptSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "ConceptExtractionResponse",
		Description: "A structured breakdown of one message",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"observation": {
				Type:        gollem.TypeString,
				Description: "What factually happened, without judgement",
				Required:    true,
			},
			"feelings": {
				Type:        gollem.TypeArray,
				Description: "Feeling words from the controlled vocabulary",
				Items:       &gollem.Parameter{Type: gollem.TypeString},
				Required:    true,
			},
			"needs": {
				Type:        gollem.TypeArray,
				Description: "Need words from the controlled vocabulary",
				Items:       &gollem.Parameter{Type: gollem.TypeString},
				Required:    true,
			},
			"request": {
				Type:        gollem.TypeString,
				Description: "The implied request, or empty",
				Required:    true,
			},
		},
	}
}
