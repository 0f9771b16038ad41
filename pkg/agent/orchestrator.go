package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/cocoro-lab/cocoro/pkg/agent/tool"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/utils/logging"
)

const (
	// MaxToolCalls caps one turn's tool batch. Requests past the cap
	// are rejected before dispatch.
	MaxToolCalls = 5

	perToolTimeout = 5 * time.Second
	phaseTimeout   = 15 * time.Second
)

// Orchestrator asks the model which tools to run for a turn, validates
// the answer, and executes the batch with correct parallel/sequential
// ordering.
type Orchestrator struct {
	registry  *tool.Registry
	llmClient gollem.LLMClient
}

func New(registry *tool.Registry, llmClient gollem.LLMClient) (*Orchestrator, error) {
	if registry == nil {
		return nil, goerr.New("tool registry is required")
	}
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	return &Orchestrator{registry: registry, llmClient: llmClient}, nil
}

// Plan is a validated tool batch for one turn.
type Plan struct {
	Requests  []*model.ToolCallRequest
	Rationale string
}

// Result aggregates one turn's tool outcomes. Outcomes carry every
// executed request, failures included; Context holds only successful
// output, formatted for the response prompt.
type Result struct {
	Outcomes  []*model.ToolResult
	Context   string
	Rationale string
}

// Orchestrate runs the full per-turn tool pass: selection, validation,
// execution, formatting. It never fails the turn; a broken selection
// pass degrades to an empty tool set.
func (o *Orchestrator) Orchestrate(ctx context.Context, message string, recent []model.Turn) *Result {
	plan := o.Plan(ctx, message, recent)
	return o.Execute(ctx, plan)
}

type toolSelectionResponse struct {
	ToolCalls []struct {
		Tool      string         `json:"tool"`
		Arguments map[string]any `json:"arguments"`
	} `json:"tool_calls"`
	Rationale string `json:"rationale"`
}

// Plan asks the model for an ordered tool batch and validates it:
// unknown tool names are dropped silently and the batch is capped
// before dispatch. A malformed selection response degrades to an empty
// plan with an explanatory rationale.
func (o *Orchestrator) Plan(ctx context.Context, message string, recent []model.Turn) *Plan {
	session, err := o.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(o.selectionSchema()),
		gollem.WithSessionSystemPrompt(o.selectionPrompt()),
	)
	if err != nil {
		logging.From(ctx).Warn("failed to create tool selection session", "error", err)
		return &Plan{Rationale: "tool selection unavailable, continuing without tools"}
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(selectionInput(message, recent)))
	if err != nil {
		logging.From(ctx).Warn("tool selection failed", "error", err)
		return &Plan{Rationale: "tool selection failed, continuing without tools"}
	}
	if len(resp.Texts) == 0 {
		return &Plan{Rationale: "tool selection returned no output, continuing without tools"}
	}

	var parsed toolSelectionResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &parsed); err != nil {
		logging.From(ctx).Warn("malformed tool selection response",
			"response", resp.Texts[0], "error", err)
		return &Plan{Rationale: "tool selection output malformed, continuing without tools"}
	}

	plan := &Plan{Rationale: parsed.Rationale}
	for _, call := range parsed.ToolCalls {
		if !o.registry.Has(call.Tool) {
			logging.From(ctx).Debug("dropping unknown tool request", "tool", call.Tool)
			continue
		}
		if len(plan.Requests) >= MaxToolCalls {
			logging.From(ctx).Debug("tool batch capped", "dropped", call.Tool)
			break
		}
		plan.Requests = append(plan.Requests, &model.ToolCallRequest{
			Tool: call.Tool,
			Args: call.Arguments,
		})
	}

	return plan
}

// Execute runs the plan: independent requests fan out concurrently and
// every settlement is collected before the dependent requests run
// one-at-a-time with the accumulated prior results in context. One
// tool's failure never cancels its siblings or the turn.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan) *Result {
	phaseCtx, cancel := context.WithTimeout(ctx, phaseTimeout)
	defer cancel()

	var failed []*model.ToolResult
	var independent, dependent []*model.ToolCallRequest
	for _, req := range plan.Requests {
		// Plan validates names, but Execute also accepts hand-built plans.
		if !o.registry.Has(req.Tool) {
			failed = append(failed, &model.ToolResult{
				Tool:    req.Tool,
				Success: false,
				Err:     goerr.New("unknown tool", goerr.V("tool", req.Tool)),
			})
			continue
		}
		if o.registry.Get(req.Tool).Spec().Independent {
			independent = append(independent, req)
		} else {
			dependent = append(dependent, req)
		}
	}

	outcomes := make([]*model.ToolResult, len(independent))
	var wg sync.WaitGroup
	for i, req := range independent {
		wg.Add(1)
		go func(i int, req *model.ToolCallRequest) {
			defer wg.Done()
			outcomes[i] = o.runTool(phaseCtx, req)
		}(i, req)
	}
	wg.Wait()

	for _, req := range dependent {
		depCtx := tool.WithPriorResults(phaseCtx, outcomes)
		outcomes = append(outcomes, o.runTool(depCtx, req))
	}
	outcomes = append(outcomes, failed...)

	for _, outcome := range outcomes {
		if !outcome.Success {
			logging.From(ctx).Warn("tool execution failed",
				"tool", outcome.Tool, "error", outcome.Err)
		}
	}

	return &Result{
		Outcomes:  outcomes,
		Context:   FormatResults(outcomes),
		Rationale: plan.Rationale,
	}
}

// runTool executes one request with a bounded timeout, converting
// panics and errors into a failed outcome.
func (o *Orchestrator) runTool(ctx context.Context, req *model.ToolCallRequest) (result *model.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = &model.ToolResult{
				Tool:    req.Tool,
				Success: false,
				Err:     goerr.New("tool panicked", goerr.V("tool", req.Tool), goerr.V("panic", r)),
			}
		}
	}()

	toolCtx, cancel := context.WithTimeout(ctx, perToolTimeout)
	defer cancel()

	value, err := o.registry.Get(req.Tool).Run(toolCtx, req.Args)
	if err != nil {
		return &model.ToolResult{Tool: req.Tool, Success: false, Err: err}
	}
	return &model.ToolResult{Tool: req.Tool, Success: true, Value: value}
}

func (o *Orchestrator) selectionPrompt() string {
	var sb strings.Builder
	sb.WriteString("You decide which helper tools to run before answering one coaching conversation turn.\n\n")
	sb.WriteString("## Available tools:\n\n")
	for _, tl := range o.registry.List() {
		spec := tl.Spec()
		fmt.Fprintf(&sb, "### %s\n", spec.Name)
		fmt.Fprintf(&sb, "%s\n", spec.Description)
		if len(spec.Parameters) > 0 {
			sb.WriteString("Parameters:\n")
			for name, param := range spec.Parameters {
				required := ""
				if param.Required {
					required = " (required)"
				}
				fmt.Fprintf(&sb, "- %s (%s)%s: %s\n", name, param.Type, required, param.Description)
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Instructions:\n\n")
	fmt.Fprintf(&sb, "1. Choose at most %d tool calls; an empty list is valid when no tool helps.\n", MaxToolCalls)
	sb.WriteString("2. Fill each call's arguments from the message.\n")
	sb.WriteString("3. Give a one-sentence rationale for the batch.\n")
	return sb.String()
}

func selectionInput(message string, recent []model.Turn) string {
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

func (o *Orchestrator) selectionSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "ToolSelectionResponse",
		Description: "The tool batch to run for this turn",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"tool_calls": {
				Type:        gollem.TypeArray,
				Description: "Ordered tool calls to execute",
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"tool": {
							Type:        gollem.TypeString,
							Description: "The tool name, exactly as listed",
							Required:    true,
						},
						"arguments": {
							Type:        gollem.TypeObject,
							Description: "Arguments matching the tool's parameter schema",
							Required:    true,
						},
					},
				},
				Required: true,
			},
			"rationale": {
				Type:        gollem.TypeString,
				Description: "One sentence explaining the batch",
				Required:    true,
			},
		},
	}
}
