package core

import (
	"github.com/m-mizutani/gollem"

	"github.com/cocoro-lab/cocoro/pkg/agent/tool"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	"github.com/cocoro-lab/cocoro/pkg/service/knowledge"
	"github.com/cocoro-lab/cocoro/pkg/service/memory"
	"github.com/cocoro-lab/cocoro/pkg/service/stage"
)

// Deps bundles the services the core tools reach into.
type Deps struct {
	Memories  *memory.Service
	Knowledge *knowledge.Service
	Machine   *stage.Machine
	LLMClient gollem.LLMClient
}

// New builds the core tools for one turn, bound to the owner and the
// conversation state of that turn.
func New(deps Deps, ownerID string, lang types.LangCode, currentStage types.StageID, recent []model.Turn) []tool.Tool {
	return []tool.Tool{
		&searchMemoryTool{memories: deps.Memories, ownerID: ownerID},
		&extractConceptsTool{llmClient: deps.LLMClient},
		&retrieveKnowledgeTool{knowledge: deps.Knowledge, lang: lang},
		&analyzeStageSwitchTool{machine: deps.Machine, currentStage: currentStage, recent: recent},
	}
}
