package openrouter

import (
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"browsercore/internal/domain/entity"
)

func TestConvertResponseMessage_WithContent(t *testing.T) {
	msg := openai.ChatCompletionMessage{Role: "assistant", Content: "Hello, world!"}

	result := convertResponseMessage(msg)

	assert.Equal(t, entity.RoleAssistant, result.Role)
	assert.Equal(t, "Hello, world!", result.Content)
	assert.Empty(t, result.ToolCalls)
}

func TestConvertResponseMessage_WithToolCalls(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Role: "assistant",
		ToolCalls: []openai.ToolCall{
			{
				ID:   "call_123",
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      "navigate",
					Arguments: `{"url":"https://example.com"}`,
				},
			},
		},
	}

	result := convertResponseMessage(msg)

	assert.Equal(t, entity.RoleAssistant, result.Role)
	assert.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call_123", result.ToolCalls[0].ID)
	assert.Equal(t, "navigate", result.ToolCalls[0].Name)
	assert.JSONEq(t, `{"url":"https://example.com"}`, string(result.ToolCalls[0].Arguments))
}

func TestConvertMessages_SystemPromptPrepended(t *testing.T) {
	messages := []entity.Message{
		{Role: entity.RoleUser, Content: "Hello"},
	}

	result := convertMessages("You are a browser agent.", messages)

	assert.Len(t, result, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, result[0].Role)
	assert.Equal(t, "You are a browser agent.", result[0].Content)
	assert.Equal(t, "user", result[1].Role)
	assert.Equal(t, "Hello", result[1].Content)
}

func TestConvertMessages_ToolResultCarriesNameAndCallID(t *testing.T) {
	messages := []entity.Message{
		{Role: entity.RoleTool, Content: "clicked", ToolCallID: "call_123", ToolName: "click"},
	}

	result := convertMessages("", messages)

	assert.Len(t, result, 1)
	assert.Equal(t, "call_123", result[0].ToolCallID)
	assert.Equal(t, "click", result[0].Name)
}

func TestConvertTools(t *testing.T) {
	tools := []entity.ToolDefinition{
		{Name: "click", Description: "Click an element", Parameters: map[string]any{"type": "object"}},
	}

	result := convertTools(tools)

	assert.Len(t, result, 1)
	assert.Equal(t, openai.ToolTypeFunction, result[0].Type)
	assert.Equal(t, "click", result[0].Function.Name)
}

func TestToolChoice_NilWhenNoTools(t *testing.T) {
	assert.Nil(t, toolChoice(nil))
	assert.Equal(t, "auto", toolChoice([]openai.Tool{{}}))
}
