package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"todoagent/pkg/circuitbreaker"
)

// recordingModel is an llms.Model that captures what it was sent.
type recordingModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	resp     *llms.ContentResponse
	err      error
}

func (m *recordingModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	m.opts = llms.CallOptions{}
	for _, o := range options {
		o(&m.opts)
	}
	return m.resp, m.err
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangChainClient_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("Should send tools in auto mode and read back tool calls", func(t *testing.T) {
		model := &recordingModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:           "call_1",
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: "add_task", Arguments: `{"title":"buy milk"}`},
			}},
		}}}}
		client := NewLangChainClient(model, "fake")

		resp, err := client.Generate(ctx, &Request{
			Messages: []Message{
				{Role: RoleSystem, Content: "be helpful"},
				{Role: RoleUser, Content: "add a task to buy milk"},
			},
			Tools:      []ToolDefinition{{Name: "add_task", Parameters: map[string]any{"type": "object"}}},
			ToolChoice: ToolChoiceAuto,
		})
		require.NoError(t, err)
		require.Len(t, resp.ToolCalls, 1)
		assert.Equal(t, "add_task", resp.ToolCalls[0].Name)
		assert.JSONEq(t, `{"title":"buy milk"}`, string(resp.ToolCalls[0].Arguments))

		require.Len(t, model.messages, 2)
		assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
		require.Len(t, model.opts.Tools, 1)
		assert.Equal(t, "add_task", model.opts.Tools[0].Function.Name)
		assert.Equal(t, ToolChoiceAuto, model.opts.ToolChoice)
	})

	t.Run("Should replay tool calls and results as typed parts", func(t *testing.T) {
		model := &recordingModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "done"}}}}
		client := NewLangChainClient(model, "fake")

		resp, err := client.Generate(ctx, &Request{
			Messages: []Message{
				{Role: RoleUser, Content: "add it"},
				{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "add_task", Arguments: json.RawMessage(`{}`)}}},
				{Role: RoleTool, ToolCallID: "c1", Name: "add_task", Content: `{"id":1}`},
			},
			Tools: []ToolDefinition{{Name: "add_task"}},
			// second call never offers tools
			ToolChoice: ToolChoiceNone,
		})
		require.NoError(t, err)
		assert.Equal(t, "done", resp.Content)
		assert.Empty(t, model.opts.Tools)

		require.Len(t, model.messages, 3)
		call, ok := model.messages[1].Parts[0].(llms.ToolCall)
		require.True(t, ok)
		assert.Equal(t, "c1", call.ID)
		result, ok := model.messages[2].Parts[0].(llms.ToolCallResponse)
		require.True(t, ok)
		assert.Equal(t, llms.ChatMessageTypeTool, model.messages[2].Role)
		assert.Equal(t, `{"id":1}`, result.Content)
	})

	t.Run("Should fail on an empty response", func(t *testing.T) {
		client := NewLangChainClient(&recordingModel{resp: &llms.ContentResponse{}}, "fake")
		_, err := client.Generate(ctx, &Request{})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

// flakyClient fails with errs in order, then succeeds.
type flakyClient struct {
	errs  []error
	calls atomic.Int32
	delay time.Duration
}

func (f *flakyClient) Provider() string { return "flaky" }

func (f *flakyClient) Generate(ctx context.Context, _ *Request) (*Response, error) {
	n := int(f.calls.Add(1))
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= len(f.errs) {
		return nil, f.errs[n-1]
	}
	return &Response{Content: "ok"}, nil
}

func TestInvoker_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("Should retry retryable errors", func(t *testing.T) {
		next := &flakyClient{errs: []error{errors.New("status code: 503"), errors.New("connection reset by peer")}}
		inv := NewInvoker(next, InvokerConfig{RetryAttempts: 2, RetryBackoff: time.Millisecond}, nil)

		resp, err := inv.Generate(ctx, &Request{})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Content)
		assert.EqualValues(t, 3, next.calls.Load())
	})

	t.Run("Should not retry client errors", func(t *testing.T) {
		next := &flakyClient{errs: []error{errors.New("status code: 400 bad request")}}
		inv := NewInvoker(next, InvokerConfig{RetryAttempts: 3, RetryBackoff: time.Millisecond}, nil)

		_, err := inv.Generate(ctx, &Request{})
		require.Error(t, err)
		assert.EqualValues(t, 1, next.calls.Load())
	})

	t.Run("Should surface a timeout as ErrTimeout", func(t *testing.T) {
		next := &flakyClient{delay: time.Second}
		inv := NewInvoker(next, InvokerConfig{Timeout: 20 * time.Millisecond, RetryAttempts: 0}, nil)

		_, err := inv.Generate(ctx, &Request{})
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("Should report an open breaker as ErrUnavailable", func(t *testing.T) {
		cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Minute})
		next := &flakyClient{errs: []error{errors.New("status code: 400"), errors.New("status code: 400")}}
		inv := NewInvoker(next, InvokerConfig{RetryAttempts: 0, Breaker: cb}, nil)

		_, err := inv.Generate(ctx, &Request{})
		require.Error(t, err)
		_, err = inv.Generate(ctx, &Request{})
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.EqualValues(t, 1, next.calls.Load())
	})
}
