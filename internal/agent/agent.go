// Package agent runs one chat turn: greeting shortcut, a model call with the
// adapter's tools, sequential tool execution and a final model call that
// turns the results into a reply.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"todoagent/internal/agent/llm"
	"todoagent/internal/agent/tools"
	"todoagent/pkg/metrics"
)

const defaultMaxHistory = 10

// ChatRequest is one user message plus the prior turns to send with it.
type ChatRequest struct {
	UserID  string
	Message string
	History []Turn
}

// ToolCallRecord is one executed (or rejected) tool call. Exactly one of
// Result and Error is set.
type ToolCallRecord struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Result    any             `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Response is the reply text and the tool calls made while producing it.
type Response struct {
	Response  string           `json:"response"`
	ToolCalls []ToolCallRecord `json:"tool_calls"`
	// Err is the model failure behind an apology, for logs and metrics.
	Err error `json:"-"`
}

// Options bounds the history window and sets the sampling temperature.
type Options struct {
	MaxHistory       int
	MaxHistoryTokens int
	Temperature      float64
}

type Agent struct {
	adapter Adapter
	client  llm.Client
	opts    Options
	counter TokenCounter
	logger  *zap.Logger
}

func New(adapter Adapter, client llm.Client, opts Options, counter TokenCounter, logger *zap.Logger) *Agent {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = defaultMaxHistory
	}
	if counter == nil {
		counter = ApproxCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{adapter: adapter, client: client, opts: opts, counter: counter, logger: logger}
}

func (a *Agent) Adapter() Adapter { return a.adapter }

// Chat never returns a Go error. Model failures come back as apology text
// with Err set; tool failures are recorded per call.
func (a *Agent) Chat(ctx context.Context, req ChatRequest) Response {
	start := time.Now()
	log := a.logger.With(zap.String("user_id", req.UserID), zap.String("adapter", a.adapter.Name()))
	log.Debug("Chat turn started", zap.Int("history", len(req.History)))

	if a.adapter.IsGreeting(req.Message) {
		metrics.IncrementChatTurn("greeting")
		log.Info("Greeting answered without model call")
		return Response{Response: a.adapter.GreetingReply(), ToolCalls: []ToolCallRecord{}}
	}

	messages := make([]llm.Message, 0, a.opts.MaxHistory+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.adapter.SystemPrompt()})
	messages = append(messages, selectHistory(req.History, a.opts.MaxHistory, a.opts.MaxHistoryTokens, a.counter)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	registry := a.adapter.Tools()
	first, err := a.client.Generate(ctx, &llm.Request{
		Messages:    messages,
		Tools:       registry.Definitions(),
		ToolChoice:  llm.ToolChoiceAuto,
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		return a.fail(log, err, nil)
	}

	if len(first.ToolCalls) == 0 {
		metrics.IncrementChatTurn("ok")
		log.Info("Chat turn completed", zap.Int("tool_calls", 0), zap.Duration("elapsed", time.Since(start)))
		return Response{Response: a.adapter.FormatResponse(first.Content, nil), ToolCalls: []ToolCallRecord{}}
	}

	calls := make([]llm.ToolCall, len(first.ToolCalls))
	for i, tc := range first.ToolCalls {
		if tc.ID == "" {
			tc.ID = fmt.Sprintf("call_%d", i)
		}
		calls[i] = tc
	}
	messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: first.Content, ToolCalls: calls})

	records := make([]ToolCallRecord, 0, len(calls))
	for _, tc := range calls {
		rec, content := a.runTool(ctx, log, registry, req.UserID, tc)
		records = append(records, rec)
		messages = append(messages, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    content,
		})
	}

	second, err := a.client.Generate(ctx, &llm.Request{
		Messages:    messages,
		ToolChoice:  llm.ToolChoiceNone,
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		// the tools already ran; their records go back with the apology
		return a.fail(log, err, records)
	}

	metrics.IncrementChatTurn("ok")
	log.Info("Chat turn completed",
		zap.Int("tool_calls", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return Response{Response: a.adapter.FormatResponse(second.Content, records), ToolCalls: records}
}

// runTool executes one call and returns its record plus the JSON the model
// sees as the tool message.
func (a *Agent) runTool(ctx context.Context, log *zap.Logger, registry *tools.Registry, userID string, tc llm.ToolCall) (ToolCallRecord, string) {
	args := tc.Arguments
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	rec := ToolCallRecord{Tool: tc.Name, Arguments: args}
	if !json.Valid(args) {
		// keep the raw text as a JSON string so the record still encodes
		rec.Arguments, _ = json.Marshal(string(args))
	}

	result, err := registry.Call(ctx, userID, tc.Name, args)
	if err != nil {
		kind := tools.ErrorKind(err)
		rec.Error = tools.ErrorMessage(err)
		metrics.IncrementToolCall(tc.Name, kind)
		log.Warn("Tool call failed",
			zap.String("tool", tc.Name),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return rec, errorContent(rec.Error)
	}

	body, err := json.Marshal(result)
	if err != nil {
		rec.Error = "result could not be encoded"
		metrics.IncrementToolCall(tc.Name, "internal")
		log.Error("Failed to encode tool result", zap.String("tool", tc.Name), zap.Error(err))
		return rec, errorContent(rec.Error)
	}

	rec.Result = result
	metrics.IncrementToolCall(tc.Name, "ok")
	if tc.Name == tools.AddTask {
		metrics.IncrementTaskGeneration("chat")
	}
	log.Debug("Tool call succeeded", zap.String("tool", tc.Name))
	return rec, string(body)
}

func (a *Agent) fail(log *zap.Logger, err error, records []ToolCallRecord) Response {
	if !errors.Is(err, ErrModelTimeout) && !errors.Is(err, ErrModelUnavailable) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrModelFailure, err)
	}
	metrics.IncrementChatTurn(outcomeOf(err))
	log.Error("Model call failed", zap.Int("tool_calls", len(records)), zap.Error(err))
	if records == nil {
		records = []ToolCallRecord{}
	}
	return Response{Response: apologyFor(err), ToolCalls: records, Err: err}
}

func errorContent(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
