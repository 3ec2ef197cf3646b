package output

import (
	"context"

	"browsercore/internal/domain/entity"
)

// ChatRequest is the opaque callLLM contract of §6: a system prompt, the
// pruned transcript, and the tool catalog for this turn.
type ChatRequest struct {
	SystemPrompt string
	Messages     []entity.Message
	Tools        []entity.ToolDefinition
	Temperature  float32
}

// ChatResponse mirrors callLLM's {content, toolCalls, finishReason} return
// shape; Message carries content and any tool calls together so callers
// can append it to the transcript verbatim.
type ChatResponse struct {
	Message      entity.Message
	FinishReason string
}

// LLMPort is free to be backed by any provider speaking an
// OpenAI-compatible chat-completion-with-tools shape.
type LLMPort interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
