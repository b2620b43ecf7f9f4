package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"todoagent/internal/agent"
	"todoagent/internal/agent/llm"
	"todoagent/internal/agent/tools"
	"todoagent/internal/handler"
	"todoagent/internal/repository/memory"
	"todoagent/internal/service/auth"
	"todoagent/internal/service/conversation"
	"todoagent/internal/service/taskstore"
)

// replayModel returns its responses in order.
type replayModel struct {
	responses []*llm.Response
	calls     int
}

func (m *replayModel) Provider() string { return "replay" }

func (m *replayModel) Generate(context.Context, *llm.Request) (*llm.Response, error) {
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func newAgentServer(t *testing.T, model llm.Client) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store := memory.New()
	tasks := taskstore.NewService(store, store, logger)
	registry := tools.NewTodoRegistry(tasks)
	chatAgent := agent.New(agent.NewTodoAdapter(registry, agent.TodoOptions{}), model, agent.Options{}, nil, logger)

	router := NewRouter(Deps{
		Auth:     handler.NewAuthHandler(auth.NewService(store, testSecret, time.Hour, logger), logger),
		Tasks:    handler.NewTaskHandler(tasks, logger),
		Chat:     handler.NewChatHandler(chatAgent, conversation.NewService(store, logger), 10, logger),
		Verifier: NewTokenVerifier(testSecret),
		Logger:   logger,
	})
	return &testServer{engine: router.Engine}
}

func TestRouter_ChatWithAgent(t *testing.T) {
	t.Run("Should encode a turn whose tool arguments are not valid JSON", func(t *testing.T) {
		model := &replayModel{responses: []*llm.Response{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: tools.AddTask, Arguments: json.RawMessage(`{"title": "milk"`)}}},
			{Content: "I could not read that request."},
		}}
		s := newAgentServer(t, model)
		token := tokenFor(t, "u1")

		w := s.do(t, http.MethodPost, "/api/chat", token, map[string]any{"message": "add milk"})
		require.Equal(t, http.StatusOK, w.Code)

		body := decode[struct {
			Response  string `json:"response"`
			ToolCalls []struct {
				Tool      string `json:"tool"`
				Arguments any    `json:"arguments"`
				Error     string `json:"error"`
			} `json:"tool_calls"`
		}](t, w)
		assert.Equal(t, "I could not read that request.", body.Response)
		require.Len(t, body.ToolCalls, 1)
		assert.Equal(t, tools.AddTask, body.ToolCalls[0].Tool)
		assert.Equal(t, `{"title": "milk"`, body.ToolCalls[0].Arguments)
		assert.NotEmpty(t, body.ToolCalls[0].Error)

		list := s.do(t, http.MethodGet, "/api/tasks", token, nil)
		require.Equal(t, http.StatusOK, list.Code)
		assert.Equal(t, float64(0), decode[map[string]any](t, list)["count"])
	})

	t.Run("Should return tool records with their arguments as objects", func(t *testing.T) {
		model := &replayModel{responses: []*llm.Response{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: tools.AddTask, Arguments: json.RawMessage(`{"title":"buy milk"}`)}}},
			{Content: "Added."},
		}}
		s := newAgentServer(t, model)

		w := s.do(t, http.MethodPost, "/api/chat", tokenFor(t, "u1"), map[string]any{"message": "add a task to buy milk"})
		require.Equal(t, http.StatusOK, w.Code)

		body := decode[map[string]any](t, w)
		calls := body["tool_calls"].([]any)
		require.Len(t, calls, 1)
		call := calls[0].(map[string]any)
		assert.Equal(t, map[string]any{"title": "buy milk"}, call["arguments"])
		assert.Empty(t, call["error"])
	})
}
