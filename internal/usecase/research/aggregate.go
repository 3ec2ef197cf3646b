package research

import (
	"context"
	"fmt"
	"strings"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

// statusEmoji renders the per-source status the aggregation prompt shows
// the LLM, so it can weigh a timed-out or errored source differently from
// one that actually extracted data.
func statusEmoji(status entity.SubTaskStatus) string {
	switch status {
	case entity.SubTaskSuccess:
		return "✅"
	case entity.SubTaskTimeout:
		return "⏱"
	default:
		return "❌"
	}
}

// aggregate runs Phase 3: one LLM call synthesizing every sub-task's
// result into a single answer to the original prompt.
func aggregate(ctx context.Context, llm output.LLMPort, systemPrompt, originalPrompt string, results []entity.SubTaskResult) (string, error) {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "Source %d: %s %s\n", i+1, statusEmoji(r.Status), r.SubTask.URL)
		fmt.Fprintf(&sb, "Goal: %s\n", r.SubTask.ExtractionGoal)
		if r.Error != "" {
			fmt.Fprintf(&sb, "Error: %s\n\n", r.Error)
			continue
		}
		fmt.Fprintf(&sb, "Extracted: %s\n\n", r.ExtractedData)
	}

	userContent := fmt.Sprintf("Original request: %s\n\n%s", originalPrompt, sb.String())

	resp, err := llm.Chat(ctx, output.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []entity.Message{{Role: entity.RoleUser, Content: userContent}},
	})
	if err != nil {
		return "", fmt.Errorf("aggregation call failed: %w", err)
	}
	return resp.Message.Content, nil
}
