package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	defaultAnthropicTokens  = 1024
)

// AnthropicClient talks to the Messages API using tool_use and tool_result
// content blocks.
type AnthropicClient struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	hc      *http.Client
}

// NewAnthropicClient creates a Messages API client. An empty baseURL uses
// DefaultAnthropicBaseURL.
func NewAnthropicClient(name, apiKey, baseURL, model string) *AnthropicClient {
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	if name == "" {
		name = "anthropic"
	}
	return &AnthropicClient{
		name:    name,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		hc:      newHTTPClient(),
	}
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return c.name }

// Complete sends a non-streaming messages request.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var out anthropicResponse
	if err := postJSON(ctx, c.hc, c.name, c.baseURL+"/messages", headers, c.buildRequest(req), &out); err != nil {
		return nil, err
	}

	var content strings.Builder
	resp := &CompletionResponse{
		StopReason: out.StopReason,
		Usage: Usage{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
		},
		Model:    out.Model,
		Duration: time.Since(start),
	}
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			input := string(block.Input)
			if input == "" || input == "null" {
				input = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Input: input})
		}
	}
	resp.Content = content.String()
	return resp, nil
}

func (c *AnthropicClient) buildRequest(req CompletionRequest) anthropicRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicTokens
	}

	body := anthropicRequest{
		Model:       model,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Messages:    anthropicMessages(req.Messages),
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	if len(body.Tools) > 0 && req.ToolChoice != "" {
		body.ToolChoice = &anthropicToolChoice{Type: req.ToolChoice}
	}
	return body
}

// anthropicMessages converts the transcript to content blocks. Tool results
// travel in user turns, and consecutive turns with the same role are merged
// because the API requires alternation.
func anthropicMessages(msgs []Message) []anthropicMessage {
	var out []anthropicMessage
	appendBlocks := func(role string, blocks ...anthropicBlock) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropicMessage{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleTool:
			appendBlocks(RoleUser, anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		case RoleAssistant:
			var blocks []anthropicBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Input)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			if len(blocks) > 0 {
				appendBlocks(RoleAssistant, blocks...)
			}
		case RoleSystem:
			// carried in the top-level system field
		default:
			appendBlocks(RoleUser, anthropicBlock{Type: "text", Text: m.Content})
		}
	}
	return out
}

// Wire types

type anthropicRequest struct {
	Model       string               `json:"model"`
	System      string               `json:"system,omitempty"`
	Messages    []anthropicMessage   `json:"messages"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature *float64             `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
