package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIBaseURL is the public OpenAI endpoint. Ollama and other
// compatible servers are reached by overriding it.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to the chat completions API with native tool calling.
type OpenAIClient struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	hc      *http.Client
}

// NewOpenAIClient creates an OpenAI-compatible client. An empty baseURL
// uses DefaultOpenAIBaseURL.
func NewOpenAIClient(name, apiKey, baseURL, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIClient{
		name:    name,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		hc:      newHTTPClient(),
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return c.name }

// Complete sends a chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var out openaiResponse
	if err := postJSON(ctx, c.hc, c.name, c.baseURL+"/chat/completions", headers, c.buildRequest(req), &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, &ProviderError{Provider: c.name, Message: "response has no choices"}
	}

	choice := out.Choices[0]
	resp := &CompletionResponse{
		StopReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
		Model:    out.Model,
		Duration: time.Since(start),
	}
	if choice.Message.Content != nil {
		resp.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}
	return resp, nil
}

func (c *OpenAIClient) buildRequest(req CompletionRequest) openaiRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body := openaiRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if req.System != "" {
		system := req.System
		body.Messages = append(body.Messages, openaiMessage{Role: RoleSystem, Content: &system})
	}
	for _, m := range req.Messages {
		om := openaiMessage{Role: m.Role, ToolCallID: m.ToolCallID}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			content := m.Content
			om.Content = &content
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openaiToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: openaiFunctionCall{Name: tc.Name, Arguments: tc.Input},
			})
		}
		body.Messages = append(body.Messages, om)
	}

	for _, t := range req.Tools {
		body.Tools = append(body.Tools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	if len(body.Tools) > 0 && req.ToolChoice != "" {
		body.ToolChoice = req.ToolChoice
	}
	return body
}

// Wire types

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Tools       []openaiTool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiFunctionCall `json:"function"`
}

type openaiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
