package model

// ToolCallRequest is an ephemeral, per-turn request produced by the tool
// selection pass. It is validated against the registry before execution.
type ToolCallRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"arguments"`
}

// ToolResult is the outcome of one tool execution. Results never outlive
// the turn that produced them except for persisted side effects.
type ToolResult struct {
	Tool    string
	Success bool
	Value   map[string]any
	Err     error
}
