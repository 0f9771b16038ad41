package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
)

// FormatResults renders successful tool outcomes into one prompt-ready
// text block. Failed outcomes are excluded; they degrade the context,
// not the turn.
func FormatResults(outcomes []*model.ToolResult) string {
	var blocks []string
	for _, outcome := range outcomes {
		if !outcome.Success {
			continue
		}
		if block := formatResult(outcome); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func formatResult(outcome *model.ToolResult) string {
	switch outcome.Tool {
	case "core__search_memory":
		return formatMemorySearch(outcome.Value)
	case "core__extract_concepts":
		return formatConcepts(outcome.Value)
	case "core__retrieve_knowledge":
		return formatKnowledge(outcome.Value)
	case "core__analyze_stage_switch":
		return formatStageAnalysis(outcome.Value)
	default:
		return formatGeneric(outcome)
	}
}

func formatMemorySearch(value map[string]any) string {
	rows, _ := value["memories"].([]map[string]any)
	if len(rows) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("### Remembered about this person\n")
	for _, row := range rows {
		fmt.Fprintf(&sb, "- %v", row["value"])
		if count, ok := row["access_count"].(int); ok && count > 1 {
			fmt.Fprintf(&sb, " (mentioned %d×)", count)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatConcepts(value map[string]any) string {
	var sb strings.Builder
	sb.WriteString("### Message breakdown\n")
	if obs, ok := value["observation"].(string); ok && obs != "" {
		fmt.Fprintf(&sb, "- Observation: %s\n", obs)
	}
	if feelings, ok := value["feelings"].([]string); ok && len(feelings) > 0 {
		fmt.Fprintf(&sb, "- Feelings: %s\n", strings.Join(feelings, ", "))
	}
	if needs, ok := value["needs"].([]string); ok && len(needs) > 0 {
		fmt.Fprintf(&sb, "- Needs: %s\n", strings.Join(needs, ", "))
	}
	if req, ok := value["request"].(string); ok && req != "" {
		fmt.Fprintf(&sb, "- Implied request: %s\n", req)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatKnowledge(value map[string]any) string {
	entries, _ := value["entries"].([]map[string]any)
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("### Relevant guidance\n")
	for _, entry := range entries {
		fmt.Fprintf(&sb, "- %v: %v\n", entry["title"], entry["body"])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStageAnalysis(value map[string]any) string {
	var sb strings.Builder
	sb.WriteString("### Stage assessment\n")
	if should, ok := value["should_switch"].(bool); ok && should {
		fmt.Fprintf(&sb, "- Suggests moving to %v (confidence %v)\n",
			value["suggested_stage"], value["confidence"])
	} else {
		sb.WriteString("- The current stage still fits\n")
	}
	if rationale, ok := value["rationale"].(string); ok && rationale != "" {
		fmt.Fprintf(&sb, "- %s\n", rationale)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatGeneric(outcome *model.ToolResult) string {
	encoded, err := json.Marshal(outcome.Value)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("### %s\n%s", outcome.Tool, string(encoded))
}
