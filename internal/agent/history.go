package agent

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"todoagent/internal/agent/llm"
)

const defaultEncoding = "cl100k_base"

// Turn is one prior message supplied by the caller or loaded from storage.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenCounter interface {
	Count(text string) int
}

// ApproxCounter estimates one token per four bytes.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

type tiktokenCounter struct {
	tke *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.tke.Encode(text, nil, nil))
}

// NewTokenCounter returns a tiktoken counter for model, or cl100k_base for
// unknown models. When no encoding can be loaded it falls back to
// ApproxCounter and reports the error.
func NewTokenCounter(model string) (TokenCounter, error) {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return ApproxCounter{}, err
		}
	}
	return tiktokenCounter{tke: tke}, nil
}

// selectHistory keeps user/assistant turns only, then the last maxTurns of
// them, then drops the oldest until the total fits maxTokens. Zero limits are
// off.
func selectHistory(history []Turn, maxTurns, maxTokens int, counter TokenCounter) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, t := range history {
		role := strings.ToLower(strings.TrimSpace(t.Role))
		if role != llm.RoleUser && role != llm.RoleAssistant {
			continue
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}

	if maxTurns > 0 && len(msgs) > maxTurns {
		msgs = msgs[len(msgs)-maxTurns:]
	}

	if maxTokens > 0 && counter != nil {
		total := 0
		counts := make([]int, len(msgs))
		for i, m := range msgs {
			counts[i] = counter.Count(m.Content)
			total += counts[i]
		}
		start := 0
		for start < len(msgs) && total > maxTokens {
			total -= counts[start]
			start++
		}
		msgs = msgs[start:]
	}
	return msgs
}
