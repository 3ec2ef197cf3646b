package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

type scriptedLLM struct {
	content string
	err     error
	lastReq output.ChatRequest
}

func (s *scriptedLLM) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &output.ChatResponse{Message: entity.Message{Content: s.content}}, nil
}

func TestDecompose_ValidPlanWithTwoOrMoreSubTasks(t *testing.T) {
	llm := &scriptedLLM{content: `{"isResearch": true, "reasoning": "needs multiple sources", "subTasks": [
		{"description": "a", "url": "https://a.example", "extractionGoal": "price"},
		{"description": "b", "url": "https://b.example", "extractionGoal": "price"}
	]}`}

	plan := decompose(context.Background(), llm, "system", "compare prices")
	require.True(t, plan.IsResearch)
	assert.Len(t, plan.SubTasks, 2)
}

func TestDecompose_StripsMarkdownCodeFences(t *testing.T) {
	llm := &scriptedLLM{content: "```json\n" + `{"isResearch": true, "subTasks": [{"url":"https://a.example"},{"url":"https://b.example"}]}` + "\n```"}

	plan := decompose(context.Background(), llm, "system", "compare prices")
	require.True(t, plan.IsResearch)
	assert.Len(t, plan.SubTasks, 2)
}

func TestDecompose_StripsProseSurroundingTheFencedBlock(t *testing.T) {
	llm := &scriptedLLM{content: "Here's the breakdown:\n```json\n" +
		`{"isResearch": true, "subTasks": [{"url":"https://a.example"},{"url":"https://b.example"}]}` +
		"\n```\nLet me know if you need changes."}

	plan := decompose(context.Background(), llm, "system", "compare prices")
	require.True(t, plan.IsResearch)
	assert.Len(t, plan.SubTasks, 2)
}

func TestDecompose_FewerThanTwoSubTasksFallsBackToSingleTab(t *testing.T) {
	llm := &scriptedLLM{content: `{"isResearch": true, "subTasks": [{"url": "https://a.example"}]}`}

	plan := decompose(context.Background(), llm, "system", "what's the weather")
	assert.False(t, plan.IsResearch)
}

func TestDecompose_TooManySubTasksAreClampedNotRejected(t *testing.T) {
	content := `{"isResearch": true, "subTasks": [`
	for i := 0; i < MaxResearchTabs+3; i++ {
		if i > 0 {
			content += ","
		}
		content += `{"url": "https://example.com"}`
	}
	content += `]}`
	llm := &scriptedLLM{content: content}

	plan := decompose(context.Background(), llm, "system", "broad research")
	require.True(t, plan.IsResearch)
	assert.Len(t, plan.SubTasks, MaxResearchTabs)
}

func TestDecompose_MalformedJSONFallsBackToSingleTab(t *testing.T) {
	llm := &scriptedLLM{content: "not json at all"}

	plan := decompose(context.Background(), llm, "system", "whatever")
	assert.False(t, plan.IsResearch)
	assert.Contains(t, plan.Reasoning, "not valid JSON")
}

func TestDecompose_LLMErrorFallsBackToSingleTab(t *testing.T) {
	llm := &scriptedLLM{err: assertErr("transport down")}

	plan := decompose(context.Background(), llm, "system", "whatever")
	assert.False(t, plan.IsResearch)
	assert.Contains(t, plan.Reasoning, "transport down")
}

type assertErrString string

func (e assertErrString) Error() string { return string(e) }
func assertErr(msg string) error        { return assertErrString(msg) }
