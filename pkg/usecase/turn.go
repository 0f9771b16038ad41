package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/cocoro-lab/cocoro/pkg/agent"
	"github.com/cocoro-lab/cocoro/pkg/agent/tool"
	"github.com/cocoro-lab/cocoro/pkg/agent/tool/core"
	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	"github.com/cocoro-lab/cocoro/pkg/repository/firestore"
	"github.com/cocoro-lab/cocoro/pkg/repository/memory"
	"github.com/cocoro-lab/cocoro/pkg/service/knowledge"
	memsvc "github.com/cocoro-lab/cocoro/pkg/service/memory"
	"github.com/cocoro-lab/cocoro/pkg/service/stage"
)

// UseCases wires the per-turn pipeline: stage evaluation, tool
// orchestration, context composition, and post-response fact ingestion.
type UseCases struct {
	repo      interfaces.Repository
	machine   *stage.Machine
	memories  *memsvc.Service
	knowledge *knowledge.Service
	llmClient gollem.LLMClient
}

func New(repo interfaces.Repository, machine *stage.Machine, memories *memsvc.Service, knowledgeSvc *knowledge.Service, llmClient gollem.LLMClient) (*UseCases, error) {
	if repo == nil {
		return nil, goerr.New("repository is required")
	}
	if machine == nil {
		return nil, goerr.New("stage machine is required")
	}
	if memories == nil {
		return nil, goerr.New("memory service is required")
	}
	if knowledgeSvc == nil {
		return nil, goerr.New("knowledge service is required")
	}
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	return &UseCases{
		repo:      repo,
		machine:   machine,
		memories:  memories,
		knowledge: knowledgeSvc,
		llmClient: llmClient,
	}, nil
}

// TurnInput is one inbound message with its conversation context. Vars
// carries the surrounding application's placeholder values (tone,
// knowledge level) merged into the stage prompt template.
type TurnInput struct {
	OwnerID  string
	Message  string
	Language types.LangCode
	Recent   []model.Turn
	Vars     map[string]string
}

// TurnOutput is the decision core's contribution to one response: the
// composed prompt context plus what happened along the way.
type TurnOutput struct {
	ComposedContext     string
	StageID             types.StageID
	Transitioned        bool
	TransitionRationale string
	ToolOutcomes        []*model.ToolResult
	ToolRationale       string
}

// HandleTurn runs the per-turn pipeline. Stage evaluation precedes tool
// orchestration; orchestration precedes context assembly. Nothing in
// the pipeline fails the turn short of the session store being
// unreachable.
func (u *UseCases) HandleTurn(ctx context.Context, input TurnInput) (*TurnOutput, error) {
	if input.OwnerID == "" {
		return nil, goerr.New("owner ID is required")
	}
	if input.Message == "" {
		return nil, goerr.New("message is required")
	}

	session, err := u.loadOrCreateSession(ctx, input.OwnerID)
	if err != nil {
		return nil, err
	}

	eval := u.machine.Evaluate(ctx, session.CurrentStage, input.Message, input.Recent)
	outcome, err := u.machine.Apply(ctx, session, eval)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to apply stage evaluation", goerr.V("ownerID", input.OwnerID))
	}
	session = outcome.Session

	registry, err := tool.NewRegistry(core.New(core.Deps{
		Memories:  u.memories,
		Knowledge: u.knowledge,
		Machine:   u.machine,
		LLMClient: u.llmClient,
	}, input.OwnerID, input.Language, session.CurrentStage, input.Recent)...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build tool registry")
	}

	orchestrator, err := agent.New(registry, u.llmClient)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build orchestrator")
	}

	toolResult := orchestrator.Orchestrate(ctx, input.Message, input.Recent)

	composed := u.composeContext(session, outcome, toolResult, input)

	return &TurnOutput{
		ComposedContext:     composed,
		StageID:             session.CurrentStage,
		Transitioned:        outcome.Transitioned,
		TransitionRationale: outcome.Rationale,
		ToolOutcomes:        toolResult.Outcomes,
		ToolRationale:       toolResult.Rationale,
	}, nil
}

func (u *UseCases) loadOrCreateSession(ctx context.Context, ownerID string) (*model.Session, error) {
	session, err := u.repo.Session().GetByOwner(ctx, ownerID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, memory.ErrNotFound) && !errors.Is(err, firestore.ErrNotFound) {
		return nil, goerr.Wrap(err, "failed to load session", goerr.V("ownerID", ownerID))
	}

	created, err := u.repo.Session().Create(ctx, model.NewSession(ownerID, types.StageOrientation))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create session", goerr.V("ownerID", ownerID))
	}
	return created, nil
}

func (u *UseCases) composeContext(session *model.Session, outcome *stage.Outcome, toolResult *agent.Result, input TurnInput) string {
	def := u.machine.Catalog().Get(session.CurrentStage)
	if def == nil {
		// The session stage always comes from the catalog; an unknown
		// stage means the catalog shrank under a live session.
		return toolResult.Context
	}

	vars := make(map[string]string, len(input.Vars)+2)
	for k, v := range input.Vars {
		vars[k] = v
	}
	vars["tool_context"] = toolResult.Context
	vars["memories"] = memsvc.FormatForPrompt(outcome.Prefetched)

	return ResolveTemplate(def.PromptTemplate, vars)
}
