package handlers

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/lyzr/flowcore/internal/engine/executor"
)

// LLMHandler executes an llm node via the OpenAI chat completions API,
// producing the {text, model, provider, tokens} output shape. Rate-limit
// and overload errors are wrapped as executor.HandlerError so the engine's
// fixed retry classifier can decide whether to retry without parsing the
// OpenAI SDK's own error type.
type LLMHandler struct {
	client *openai.Client
}

// NewLLMHandler returns an LLMHandler backed by apiKey.
func NewLLMHandler(apiKey string) *LLMHandler {
	return &LLMHandler{client: openai.NewClient(apiKey)}
}

// Handle implements executor.Handler. Config fields: model (string,
// default gpt-4o-mini), prompt (string, required), systemPrompt (string,
// optional), temperature (number, optional).
func (h *LLMHandler) Handle(ctx context.Context, nodeConfig map[string]interface{}, execView map[string]interface{}, meta executor.Metadata) executor.Result {
	prompt, _ := nodeConfig["prompt"].(string)
	if prompt == "" {
		return executor.Result{Err: fmt.Errorf("llm node %s: missing prompt", meta.NodeID)}
	}
	model, _ := nodeConfig["model"].(string)
	if model == "" {
		model = openai.GPT4oMini
	}

	messages := []openai.ChatCompletionMessage{}
	if system, ok := nodeConfig["systemPrompt"].(string); ok && system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if temp, ok := nodeConfig["temperature"].(float64); ok {
		req.Temperature = float32(temp)
	}

	resp, err := h.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return executor.Result{Err: classifyOpenAIError(meta.NodeID, err)}
	}
	if len(resp.Choices) == 0 {
		return executor.Result{Err: fmt.Errorf("llm node %s: empty response", meta.NodeID)}
	}

	return executor.Result{Output: map[string]interface{}{
		"text":     resp.Choices[0].Message.Content,
		"model":    resp.Model,
		"provider": "openai",
		"tokens":   resp.Usage.TotalTokens,
	}}
}

func classifyOpenAIError(nodeID string, err error) error {
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		return &executor.HandlerError{
			StatusCode: apiErr.HTTPStatusCode,
			Category:   categoryFromOpenAICode(apiErr.Code),
			Message:    fmt.Sprintf("llm node %s: %s", nodeID, apiErr.Message),
			Cause:      err,
		}
	}
	return fmt.Errorf("llm node %s: %w", nodeID, err)
}

func asAPIError(err error, target **openai.APIError) bool {
	if apiErr, ok := err.(*openai.APIError); ok {
		*target = apiErr
		return true
	}
	return false
}

func categoryFromOpenAICode(code interface{}) string {
	if s, ok := code.(string); ok {
		switch s {
		case "rate_limit_exceeded":
			return "rate_limit"
		case "overloaded_error":
			return "overloaded"
		}
	}
	return ""
}
