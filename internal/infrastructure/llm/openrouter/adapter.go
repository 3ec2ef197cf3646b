// Package openrouter adapts go-openai's client to output.LLMPort against
// OpenRouter's OpenAI-compatible chat-completions endpoint — the callLLM
// contract of §6.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

var _ output.LLMPort = (*Adapter)(nil)

// Adapter wraps the OpenRouter HTTP API. limiter throttles requests to
// stay under OpenRouter's per-key rate ceiling regardless of how many
// sub-task Agent Loops are calling Chat concurrently during Phase 2.
type Adapter struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	logger  output.LoggerPort
}

type Config struct {
	APIKey string
	Model  string
	// BaseURL defaults to OpenRouter's v1 endpoint when empty.
	BaseURL string
	// RequestsPerSecond defaults to 2 when zero, a conservative ceiling
	// that still lets Phase 2's handful of concurrent sub-tasks proceed
	// without hammering the upstream key.
	RequestsPerSecond float64
	Logger            output.LoggerPort
}

func New(cfg Config) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = baseURL
	if cfg.Logger != nil {
		clientCfg.HTTPClient = &http.Client{
			Transport: &loggingTransport{base: http.DefaultTransport, logger: cfg.Logger},
		}
	}

	return &Adapter{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  cfg.Logger,
	}
}

func (a *Adapter) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	messages := convertMessages(req.SystemPrompt, req.Messages)
	tools := convertTools(req.Tools)

	if a.logger != nil {
		a.logger.Debug("llm chat request", "model", a.model, "messages", len(messages), "tools", len(tools))
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Tools:       tools,
		ToolChoice:  toolChoice(tools),
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: no choices returned")
	}

	choice := resp.Choices[0]
	return &output.ChatResponse{
		Message:      convertResponseMessage(choice.Message),
		FinishReason: string(choice.FinishReason),
	}, nil
}

func toolChoice(tools []openai.Tool) any {
	if len(tools) == 0 {
		return nil
	}
	return "auto"
}

func convertMessages(systemPrompt string, messages []entity.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		if msg.ToolName != "" {
			oaiMsg.Name = msg.ToolName
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		result = append(result, oaiMsg)
	}
	return result
}

func convertTools(tools []entity.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return result
}

func convertResponseMessage(msg openai.ChatCompletionMessage) entity.Message {
	result := entity.Message{Role: entity.MessageRole(msg.Role), Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, entity.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return result
}

// loggingTransport traces outbound OpenRouter requests at debug level,
// the same texture the teacher used to debug tool-call payload shape
// issues against the provider.
type loggingTransport struct {
	base   http.RoundTripper
	logger output.LoggerPort
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		bodyBytes, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	t.logger.Debug("openrouter request", "method", req.Method, "url", req.URL.String(), "bytes", len(bodyBytes))

	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		t.logger.Debug("openrouter response", "status", resp.Status)
	}
	return resp, err
}
