package research

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsercore/internal/application/port/output"
	"browsercore/internal/application/toolcatalog"
	"browsercore/internal/domain/agentrun"
	"browsercore/internal/domain/entity"
)

type nopObservation struct{}

func (nopObservation) TakeSnapshot(ctx context.Context, tabID entity.TabID) (*entity.Snapshot, error) {
	return &entity.Snapshot{}, nil
}

type nopAction struct{}

func (nopAction) Click(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot) (string, error) {
	return "", nil
}
func (nopAction) TypeText(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot, text string) (string, error) {
	return "", nil
}
func (nopAction) PressKey(ctx context.Context, tabID entity.TabID, key string) (string, error) {
	return "", nil
}
func (nopAction) Scroll(ctx context.Context, tabID entity.TabID, direction string, amount int) (string, error) {
	return "", nil
}
func (nopAction) SelectOption(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot, value string) (string, error) {
	return "", nil
}
func (nopAction) Hover(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot) (string, error) {
	return "", nil
}
func (nopAction) SetValue(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot, value string) (string, error) {
	return "", nil
}
func (nopAction) WaitForNetworkIdle(ctx context.Context, tabID entity.TabID, timeout time.Duration) (string, error) {
	return "", nil
}
func (nopAction) Navigate(ctx context.Context, tabID entity.TabID, url string) (string, error) {
	return "", nil
}
func (nopAction) Screenshot(ctx context.Context, tabID entity.TabID) (string, error) {
	return "", nil
}

type fakeRegistry struct {
	nextID      entity.TabID
	detachedAll bool
}

func (f *fakeRegistry) CreateTab(ctx context.Context, url, taskDescription string) (entity.TabID, error) {
	f.nextID++
	return f.nextID, nil
}
func (f *fakeRegistry) Attach(ctx context.Context, tabID entity.TabID) error             { return nil }
func (f *fakeRegistry) Detach(tabID entity.TabID) error                                  { return nil }
func (f *fakeRegistry) CloseTab(ctx context.Context, tabID entity.TabID) error           { return nil }
func (f *fakeRegistry) DetachAll() error                                                 { f.detachedAll = true; return nil }
func (f *fakeRegistry) CloseAll(ctx context.Context) error                               { return nil }
func (f *fakeRegistry) UpdateState(tabID entity.TabID, patch entity.TabStatePatch) error { return nil }
func (f *fakeRegistry) GetState(tabID entity.TabID) (entity.Tab, bool)                   { return entity.Tab{}, false }
func (f *fakeRegistry) GetAllStates() []entity.Tab                                       { return nil }

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)                      {}
func (nopLogger) Info(msg string, args ...any)                       {}
func (nopLogger) Warn(msg string, args ...any)                       {}
func (nopLogger) Error(msg string, args ...any)                      {}
func (nopLogger) WithField(key string, value any) output.LoggerPort  { return nopLogger{} }
func (nopLogger) WithFields(fields map[string]any) output.LoggerPort { return nopLogger{} }
func (nopLogger) Close() error                                       { return nil }

func TestOrchestratorRun_NonResearchPromptFallsBackWithoutCreatingTabs(t *testing.T) {
	llm := &scriptedLLM{content: `{"isResearch": false, "reasoning": "single fact lookup"}`}
	registry := &fakeRegistry{}
	deps := toolcatalog.Deps{Registry: registry, Observation: nopObservation{}}
	orch := New(llm, deps, agentrun.New(), nopLogger{}, Prompts{Decompose: "decompose", Aggregate: "aggregate"})

	result, err := orch.Run(context.Background(), "what's the capital of France", nil)
	require.NoError(t, err)
	assert.Contains(t, result.FinalAnswer, "agent mode")
	assert.Equal(t, entity.TabID(0), registry.nextID)
}

// routingLLM answers each of the orchestrator's three distinct LLM call
// sites (decompose, per-sub-task agent loop, aggregate) by inspecting
// which system prompt it was given, so a single fake can drive a full
// Run end to end.
type routingLLM struct{}

func (routingLLM) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	switch {
	case req.SystemPrompt == "decompose":
		return &output.ChatResponse{Message: entity.Message{Content: `{"isResearch": true, "subTasks": [
			{"description": "a", "url": "https://a.example", "extractionGoal": "price"},
			{"description": "b", "url": "https://b.example", "extractionGoal": "price"}
		]}`}}, nil
	case strings.Contains(req.SystemPrompt, "research sub-agent"):
		return &output.ChatResponse{Message: entity.Message{ToolCalls: []entity.ToolCall{
			{ID: "1", Name: "extract_data", Arguments: json.RawMessage(`{"data":"found it"}`)},
		}}}, nil
	default:
		return &output.ChatResponse{Message: entity.Message{Content: "synthesized answer"}}, nil
	}
}

func TestOrchestratorRun_DetachesAllTabsAfterAggregationCompletes(t *testing.T) {
	registry := &fakeRegistry{}
	deps := toolcatalog.Deps{Registry: registry, Observation: nopObservation{}, Action: nopAction{}}
	orch := New(routingLLM{}, deps, agentrun.New(), nopLogger{}, Prompts{Decompose: "decompose", Aggregate: "aggregate"})

	result, err := orch.Run(context.Background(), "compare prices across two sites", nil)
	require.NoError(t, err)
	assert.Equal(t, "synthesized answer", result.FinalAnswer)
	assert.True(t, registry.detachedAll)
}

func TestStatusEmojiCoversAllStatuses(t *testing.T) {
	for _, s := range []entity.SubTaskStatus{entity.SubTaskSuccess, entity.SubTaskTimeout, entity.SubTaskError} {
		assert.NotEmpty(t, statusEmoji(s))
	}
}
