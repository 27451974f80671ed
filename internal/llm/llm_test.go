package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/roombot/internal/config"
	"github.com/soyeahso/roombot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

var roomsSchema = json.RawMessage(`{"type":"object","properties":{"date":{"type":"string"}},"required":["date"]}`)

func toolTranscript() CompletionRequest {
	return CompletionRequest{
		System: "be helpful",
		Messages: []Message{
			{Role: RoleUser, Content: "book a room"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{
				{ID: "call_1", Name: "getAvailableRooms", Input: `{"date":"2030-01-01"}`},
				{ID: "call_2", Name: "searchKnowledge", Input: `{"query":"wifi"}`},
			}},
			{Role: RoleTool, ToolCallID: "call_1", Content: `{"result":[]}`},
			{Role: RoleTool, ToolCallID: "call_2", Content: `{"result":"ok"}`},
		},
		Tools:      []ToolDefinition{{Name: "getAvailableRooms", Description: "Find rooms", InputSchema: roomsSchema}},
		ToolChoice: ToolChoiceAuto,
		MaxTokens:  256,
	}
}

// --- Registry tests ---

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("openai", &MockClient{ProviderName: "openai"})
	reg.Register("local", &MockClient{ProviderName: "local"})
	reg.Alias("gpt-4o", "openai")

	c, err := reg.Resolve("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = reg.Resolve("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	_, err = reg.Resolve("unknown")
	assert.Error(t, err)

	reg.SetFallback("local")
	c, err = reg.Resolve("unknown")
	require.NoError(t, err)
	assert.Equal(t, "local", c.Name())

	assert.Equal(t, []string{"local", "openai"}, reg.List())
}

func TestRegistryCandidates(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("a", &MockClient{ProviderName: "a"})
	reg.Register("b", &MockClient{ProviderName: "b"})
	reg.SetChain("a", "b", "missing")

	cs, err := reg.Candidates("a")
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "a", cs[0].Name())
	assert.Equal(t, "b", cs[1].Name())
}

func TestNewRegistryFromConfig(t *testing.T) {
	reg := NewRegistryFromConfig(config.LLMConfig{
		Primary:   "gpt-4o",
		Fallbacks: []string{"claude"},
		Providers: map[string]config.ProviderEntry{
			"openai":    {API: "openai", APIKey: "k", Model: "gpt-4o"},
			"anthropic": {API: "anthropic", APIKey: "k", Model: "claude-sonnet-4-5", Aliases: []string{"claude"}},
			"bogus":     {API: "cohere", Model: "x"},
		},
	}, silentLog())

	assert.Equal(t, []string{"anthropic", "openai"}, reg.List())
	cs, err := reg.Candidates("gpt-4o")
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "openai", cs[0].Name())
	assert.Equal(t, "anthropic", cs[1].Name())

	c, err := reg.Resolve("anything")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
}

// --- Mock ---

func TestMockClientScripted(t *testing.T) {
	m := &MockClient{Responses: []*CompletionResponse{{Content: "one"}, {Content: "two"}}}
	ctx := context.Background()

	for _, want := range []string{"one", "two", "mock response"} {
		resp, err := m.Complete(ctx, CompletionRequest{})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
	assert.Equal(t, 3, m.Calls())
	assert.Len(t, m.Requests(), 3)
}

func TestMockClientCompleteFunc(t *testing.T) {
	m := &MockClient{CompleteFunc: func(context.Context, CompletionRequest) (*CompletionResponse, error) {
		return nil, errors.New("down")
	}}
	_, err := m.Complete(context.Background(), CompletionRequest{})
	assert.EqualError(t, err, "down")
}

// --- Errors ---

func TestProviderError(t *testing.T) {
	tests := []struct {
		err       *ProviderError
		text      string
		retryable bool
	}{
		{&ProviderError{Provider: "openai", Code: 429, Message: "slow down"}, "openai: 429 slow down", true},
		{&ProviderError{Provider: "openai", Code: 503, Message: "busy"}, "openai: 503 busy", true},
		{&ProviderError{Provider: "openai", Message: "connection refused"}, "openai: connection refused", true},
		{&ProviderError{Provider: "openai", Code: 401, Message: "bad key"}, "openai: 401 bad key", false},
		{&ProviderError{Provider: "openai", Code: 400, Message: "bad request"}, "openai: 400 bad request", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.text, tt.err.Error())
		assert.Equal(t, tt.retryable, tt.err.Retryable())
		assert.Equal(t, tt.retryable, IsRetryable(tt.err))
	}
	assert.False(t, IsRetryable(errors.New("plain")))
}

// --- OpenAI ---

func TestOpenAIClient_ToolCalls(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"model": "gpt-4o",
			"choices": [{
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{"id": "call_9", "type": "function",
						"function": {"name": "createReservation", "arguments": "{\"roomId\":1}"}}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("", "sk-test", srv.URL+"/v1/", "gpt-4o")
	resp, err := c.Complete(context.Background(), toolTranscript())
	require.NoError(t, err)

	assert.Equal(t, "openai", c.Name())
	assert.Empty(t, resp.Content)
	assert.Equal(t, "tool_calls", resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_9", Name: "createReservation", Input: `{"roomId":1}`}, resp.ToolCalls[0])
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 3}, resp.Usage)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.Equal(t, "auto", got["tool_choice"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 5)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assistant := msgs[2].(map[string]any)
	assert.Nil(t, assistant["content"])
	assert.Len(t, assistant["tool_calls"], 2)
	tool := msgs[3].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
	tools := got["tools"].([]any)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "getAvailableRooms", fn["name"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])
}

func TestOpenAIClient_Text(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		io.WriteString(w, `{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"Room 3 is free."}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("ollama", "", srv.URL, "llama3.1")
	resp, err := c.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "Room 3 is free.", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestOpenAIClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("", "k", srv.URL, "m").Complete(context.Background(), CompletionRequest{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 429, pe.Code)
	assert.True(t, pe.Retryable())

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer empty.Close()
	_, err = NewOpenAIClient("", "k", empty.URL, "m").Complete(context.Background(), CompletionRequest{})
	assert.ErrorAs(t, err, &pe)
}

func TestOpenAIClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOpenAIClient("", "k", srv.URL, "m").Complete(ctx, CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

// --- Anthropic ---

func TestAnthropicClient_ToolUse(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{
			"id": "msg_1",
			"model": "claude-sonnet-4-5",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Checking rooms."},
				{"type": "tool_use", "id": "tu_1", "name": "getAvailableRooms",
				 "input": {"date": "2030-01-01", "startTime": "10:00", "endTime": "11:00"}}
			],
			"usage": {"input_tokens": 20, "output_tokens": 7}
		}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("", "ak", srv.URL+"/v1", "claude-sonnet-4-5")
	resp, err := c.Complete(context.Background(), toolTranscript())
	require.NoError(t, err)

	assert.Equal(t, "anthropic", c.Name())
	assert.Equal(t, "Checking rooms.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"date":"2030-01-01","startTime":"10:00","endTime":"11:00"}`, resp.ToolCalls[0].Input)
	assert.Equal(t, Usage{InputTokens: 20, OutputTokens: 7}, resp.Usage)

	assert.Equal(t, "be helpful", got.System)
	assert.Equal(t, 256, got.MaxTokens)
	require.NotNil(t, got.ToolChoice)
	assert.Equal(t, "auto", got.ToolChoice.Type)
	require.Len(t, got.Messages, 3, "user, assistant, merged tool results")
	assert.Equal(t, RoleAssistant, got.Messages[1].Role)
	require.Len(t, got.Messages[1].Content, 2)
	assert.Equal(t, "tool_use", got.Messages[1].Content[0].Type)
	assert.JSONEq(t, `{"date":"2030-01-01"}`, string(got.Messages[1].Content[0].Input))
	assert.Equal(t, RoleUser, got.Messages[2].Role)
	require.Len(t, got.Messages[2].Content, 2)
	assert.Equal(t, "tool_result", got.Messages[2].Content[0].Type)
	assert.Equal(t, "call_1", got.Messages[2].Content[0].ToolUseID)
	assert.Equal(t, "call_2", got.Messages[2].Content[1].ToolUseID)
}

func TestAnthropicClient_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewAnthropicClient("", "bad", srv.URL, "m").Complete(context.Background(), CompletionRequest{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 401, pe.Code)
	assert.False(t, pe.Retryable())
}

func TestAnthropicMessages_DefaultsAndInvalidInput(t *testing.T) {
	msgs := anthropicMessages([]Message{
		{Role: RoleSystem, Content: "ignored"},
		{Role: RoleUser, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "x", Name: "n", Input: "not json"}}},
	})
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Content, 2)
	assert.JSONEq(t, `{}`, string(msgs[1].Content[0].Input))

	body := NewAnthropicClient("", "k", "", "m").buildRequest(CompletionRequest{})
	assert.Equal(t, defaultAnthropicTokens, body.MaxTokens)
	assert.Nil(t, body.ToolChoice)
}
