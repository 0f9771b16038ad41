package core

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/cocoro-lab/cocoro/pkg/agent/tool"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	"github.com/cocoro-lab/cocoro/pkg/service/stage"
)

// analyzeStageSwitchTool exposes the stage classifier as an explicitly
// callable tool. It only reports the evaluation; the turn pipeline
// decides whether a transition is applied.
type analyzeStageSwitchTool struct {
	machine      *stage.Machine
	currentStage types.StageID
	recent       []model.Turn
}

func (t *analyzeStageSwitchTool) Spec() tool.Spec {
	return tool.Spec{
		Name:        "core__analyze_stage_switch",
		Description: "Judge whether the conversation should move to a different coaching stage. Use when the message reads like a change of direction.",
		Parameters: map[string]*gollem.Parameter{
			"message": {
				Type:        gollem.TypeString,
				Description: "The message to judge",
				Required:    true,
			},
		},
		Independent: true,
	}
}

func (t *analyzeStageSwitchTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	message, _ := args["message"].(string)
	if message == "" {
		return nil, goerr.New("message is required")
	}

	tool.Update(ctx, "Analyzing conversation stage...")

	eval := t.machine.Evaluate(ctx, t.currentStage, message, t.recent)

	return map[string]any{
		"current_stage":          t.currentStage.String(),
		"should_switch":          eval.ShouldSwitch,
		"confidence":             eval.Confidence,
		"suggested_stage":        eval.SuggestedStage.String(),
		"rationale":              eval.Rationale,
		"current_stage_complete": eval.CurrentStageComplete,
	}, nil
}
