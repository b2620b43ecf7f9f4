package agent

import (
	"fmt"
	"strings"

	"todoagent/internal/agent/tools"
)

const TodoAdapterName = "todo"

const defaultTodoPrompt = `You are a concise assistant that manages the user's todo list.
Use the tools to add, list, update, complete and delete tasks and to manage tags.
Never invent task ids: list tasks first when you need one.
Dates are ISO 8601. Priorities are low, medium, high or urgent.
After using tools, tell the user in one or two sentences what changed or what you found.
If a tool returns an error, explain it plainly and suggest a fix.`

const defaultGreetingReply = "Hello! I can help you manage your tasks. Try \"add a task to buy milk\" or \"what's due this week?\""

type TodoOptions struct {
	SystemPrompt  string
	GreetingReply string
	Greetings     []string
}

type TodoAdapter struct {
	prompt   string
	greeting string
	matcher  GreetingMatcher
	registry *tools.Registry
}

// NewTodoAdapter wires the todo tools; empty options keep the defaults.
func NewTodoAdapter(registry *tools.Registry, opts TodoOptions) *TodoAdapter {
	a := &TodoAdapter{
		prompt:   defaultTodoPrompt,
		greeting: defaultGreetingReply,
		matcher:  NewGreetingMatcher(opts.Greetings...),
		registry: registry,
	}
	if strings.TrimSpace(opts.SystemPrompt) != "" {
		a.prompt = opts.SystemPrompt
	}
	if strings.TrimSpace(opts.GreetingReply) != "" {
		a.greeting = opts.GreetingReply
	}
	return a
}

func (a *TodoAdapter) Name() string               { return TodoAdapterName }
func (a *TodoAdapter) SystemPrompt() string       { return a.prompt }
func (a *TodoAdapter) Tools() *tools.Registry     { return a.registry }
func (a *TodoAdapter) IsGreeting(msg string) bool { return a.matcher.Match(msg) }
func (a *TodoAdapter) GreetingReply() string      { return a.greeting }

func (a *TodoAdapter) FormatResponse(text string, calls []ToolCallRecord) string {
	if text = strings.TrimSpace(text); text != "" {
		return text
	}
	return summarizeCalls(calls)
}

// summarizeCalls builds a reply from tool results when the model returned
// no text of its own.
func summarizeCalls(calls []ToolCallRecord) string {
	if len(calls) == 0 {
		return "Done."
	}
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		if c.Error != "" {
			lines = append(lines, fmt.Sprintf("%s failed: %s", humanTool(c.Tool), c.Error))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s succeeded.", humanTool(c.Tool)))
	}
	return strings.Join(lines, "\n")
}

func humanTool(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return "Tool"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
