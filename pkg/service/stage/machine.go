package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	"github.com/cocoro-lab/cocoro/pkg/utils/logging"
)

// MinConfidence is the classifier confidence below which a suggested
// transition is ignored.
const MinConfidence = 70

// recallPrefetchLimit caps the eager memory fetch on entering the
// memory-recall stage.
const recallPrefetchLimit = 50

// MemoryLister is the slice of the memory service the machine needs for
// the memory-recall prefetch.
type MemoryLister interface {
	List(ctx context.Context, ownerID string, limit int) ([]*model.Memory, error)
}

// Machine decides and applies stage transitions. At most one transition
// is applied per turn, atomically with its history append.
type Machine struct {
	catalog   *Catalog
	llmClient gollem.LLMClient
	sessions  interfaces.SessionRepository
	memories  MemoryLister
}

func NewMachine(catalog *Catalog, llmClient gollem.LLMClient, sessions interfaces.SessionRepository, memories MemoryLister) (*Machine, error) {
	if catalog == nil {
		return nil, goerr.New("stage catalog is required")
	}
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	if sessions == nil {
		return nil, goerr.New("session repository is required")
	}
	if memories == nil {
		return nil, goerr.New("memory lister is required")
	}
	return &Machine{
		catalog:   catalog,
		llmClient: llmClient,
		sessions:  sessions,
		memories:  memories,
	}, nil
}

func (m *Machine) Catalog() *Catalog {
	return m.catalog
}

// Evaluation is the classifier's view of one inbound message.
type Evaluation struct {
	ShouldSwitch         bool          `json:"should_switch"`
	Confidence           int           `json:"confidence"`
	SuggestedStage       types.StageID `json:"suggested_stage"`
	Rationale            string        `json:"rationale"`
	CurrentStageComplete bool          `json:"current_stage_complete"`
}

// Evaluate asks the classifier whether the conversation should move to a
// different stage. It never fails: classifier errors and malformed
// output degrade to a no-switch evaluation.
func (m *Machine) Evaluate(ctx context.Context, current types.StageID, message string, recent []model.Turn) *Evaluation {
	def := m.catalog.Get(current)

	// Stages with switch cues protect their own script: evaluation is
	// skipped unless the message contains a cue.
	if def != nil && len(def.SwitchKeywords) > 0 && !containsCue(message, def.SwitchKeywords) {
		return &Evaluation{
			ShouldSwitch: false,
			Rationale:    "stage script in progress, no switch cue in message",
		}
	}

	session, err := m.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(evaluationSchema()),
		gollem.WithSessionSystemPrompt(m.evaluationPrompt(current)),
	)
	if err != nil {
		logging.From(ctx).Warn("failed to create stage evaluation session", "error", err)
		return noSwitch("stage classifier unavailable")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(evaluationInput(message, recent)))
	if err != nil {
		logging.From(ctx).Warn("stage evaluation failed", "stage", current, "error", err)
		return noSwitch("stage classifier failed")
	}
	if len(resp.Texts) == 0 {
		return noSwitch("stage classifier returned no output")
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(resp.Texts[0]), &eval); err != nil {
		logging.From(ctx).Warn("malformed stage evaluation response",
			"response", resp.Texts[0], "error", err)
		return noSwitch("stage classifier output malformed")
	}

	return &eval
}

func noSwitch(rationale string) *Evaluation {
	return &Evaluation{ShouldSwitch: false, Rationale: rationale}
}

func containsCue(message string, cues []string) bool {
	lowered := strings.ToLower(message)
	for _, cue := range cues {
		if strings.Contains(lowered, strings.ToLower(cue)) {
			return true
		}
	}
	return false
}

// Decide reports the transition target, if any. A switch applies only
// when the classifier wants it, confidence meets the bar, and the
// suggested stage is a known stage different from the current one.
func (m *Machine) Decide(current types.StageID, eval *Evaluation) (types.StageID, bool) {
	if eval == nil || !eval.ShouldSwitch {
		return "", false
	}
	if eval.Confidence < MinConfidence {
		return "", false
	}
	if eval.SuggestedStage == "" || eval.SuggestedStage == current {
		return "", false
	}
	if !m.catalog.Has(eval.SuggestedStage) {
		return "", false
	}
	return eval.SuggestedStage, true
}

// Outcome is the applied result of one evaluation.
type Outcome struct {
	Session      *model.Session
	Transitioned bool
	Rationale    string
	// Prefetched is populated when the turn enters memory-recall, so
	// the next response has the owner's memories without waiting on the
	// general tool pass.
	Prefetched []*model.Memory
}

// Apply commits the evaluation against the owner's session.
func (m *Machine) Apply(ctx context.Context, session *model.Session, eval *Evaluation) (*Outcome, error) {
	target, ok := m.Decide(session.CurrentStage, eval)
	if !ok {
		return &Outcome{Session: session, Transitioned: false, Rationale: eval.Rationale}, nil
	}

	updated, err := m.sessions.ApplyTransition(ctx, session.OwnerID, model.StageTransition{
		From:       session.CurrentStage,
		To:         target,
		Confidence: eval.Confidence,
		Rationale:  eval.Rationale,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to apply stage transition",
			goerr.V("ownerID", session.OwnerID), goerr.V("to", target))
	}

	outcome := &Outcome{Session: updated, Transitioned: true, Rationale: eval.Rationale}

	if target == types.StageMemoryRecall {
		memories, err := m.memories.List(ctx, session.OwnerID, recallPrefetchLimit)
		if err != nil {
			logging.From(ctx).Warn("memory prefetch on recall entry failed",
				"ownerID", session.OwnerID, "error", err)
		} else {
			outcome.Prefetched = memories
		}
	}

	return outcome, nil
}

func (m *Machine) evaluationPrompt(current types.StageID) string {
	var sb strings.Builder
	sb.WriteString("You classify whether a guided coaching conversation should move to a different stage.\n\n")
	fmt.Fprintf(&sb, "Current stage: %s\n\n", current)
	sb.WriteString("## Available stages:\n\n")
	for _, id := range m.catalog.IDs() {
		def := m.catalog.Get(id)
		fmt.Fprintf(&sb, "### %s\n", def.ID)
		fmt.Fprintf(&sb, "Enter when: %s\n", def.Entry)
		fmt.Fprintf(&sb, "Leave when: %s\n", def.Exit)
		if len(def.LikelyNext) > 0 {
			names := make([]string, len(def.LikelyNext))
			for i, n := range def.LikelyNext {
				names[i] = n.String()
			}
			fmt.Fprintf(&sb, "Often followed by: %s\n", strings.Join(names, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Instructions:\n\n")
	sb.WriteString("1. Judge from the latest message and recent turns whether the current stage still fits.\n")
	sb.WriteString("2. Suggest a switch only when the conversation clearly moved on; staying is the safe default.\n")
	sb.WriteString("3. The \"often followed by\" lists are hints, not rules.\n")
	sb.WriteString("4. Report confidence 0-100 and a one-sentence rationale.\n")
	return sb.String()
}

func evaluationInput(message string, recent []model.Turn) string {
	var sb strings.Builder
	if len(recent) > 0 {
		sb.WriteString("## Recent turns:\n\n")
		for _, turn := range recent {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Content)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Latest message:\n\n")
	sb.WriteString(message)
	return sb.String()
}

func evaluationSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "StageEvaluationResponse",
		Description: "Whether the conversation should move to a different stage",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"should_switch": {
				Type:        gollem.TypeBoolean,
				Description: "True when the conversation should move to a different stage",
				Required:    true,
			},
			"confidence": {
				Type:        gollem.TypeInteger,
				Description: "Confidence in the judgement, 0 to 100",
				Required:    true,
			},
			"suggested_stage": {
				Type:        gollem.TypeString,
				Description: "The stage to move to, empty when should_switch is false",
			},
			"rationale": {
				Type:        gollem.TypeString,
				Description: "One sentence explaining the judgement",
				Required:    true,
			},
			"current_stage_complete": {
				Type:        gollem.TypeBoolean,
				Description: "True when the current stage's goal is met regardless of switching",
				Required:    true,
			},
		},
	}
}
