package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

// MaxResearchTabs bounds Phase 1's fan-out (§4.5) — the decomposer is
// asked to respect it, but a misbehaving LLM response is re-clamped here
// regardless.
const MaxResearchTabs = 5

// extractJSONObject pulls the outermost {...} object out of response,
// tolerating markdown code fences and any prose the LLM wraps around the
// object.
func extractJSONObject(response string) (string, error) {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}

	return response[start : end+1], nil
}

// decompose runs Phase 1: one LLM call asking whether prompt warrants a
// multi-source research plan, and if so, into what sub-tasks. Any
// malformed response, or a plan with fewer than two sub-tasks, resolves
// to IsResearch=false so the caller falls back to the single-tab agent.
func decompose(ctx context.Context, llm output.LLMPort, systemPrompt, prompt string) entity.ResearchPlan {
	resp, err := llm.Chat(ctx, output.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []entity.Message{{Role: entity.RoleUser, Content: prompt}},
	})
	if err != nil {
		return entity.ResearchPlan{IsResearch: false, Reasoning: "decomposition call failed: " + err.Error()}
	}

	raw, err := extractJSONObject(resp.Message.Content)
	if err != nil {
		return entity.ResearchPlan{IsResearch: false, Reasoning: "decomposition response was not valid JSON"}
	}

	var plan entity.ResearchPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return entity.ResearchPlan{IsResearch: false, Reasoning: "decomposition response was not valid JSON"}
	}

	if len(plan.SubTasks) > MaxResearchTabs {
		plan.SubTasks = plan.SubTasks[:MaxResearchTabs]
	}
	if len(plan.SubTasks) < 2 {
		plan.IsResearch = false
	}
	return plan
}
