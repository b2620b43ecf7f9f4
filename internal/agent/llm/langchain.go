package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

var ErrEmptyResponse = errors.New("empty response from model")

// LangChainClient adapts a langchaingo model to Client.
type LangChainClient struct {
	model    llms.Model
	provider string
}

func NewLangChainClient(model llms.Model, provider string) *LangChainClient {
	return &LangChainClient{model: model, provider: provider}
}

func (c *LangChainClient) Provider() string { return c.provider }

func (c *LangChainClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.model.GenerateContent(ctx, convertMessages(req.Messages), buildCallOptions(req)...)
	if err != nil {
		return nil, fmt.Errorf("%s GenerateContent failed: %w", c.provider, err)
	}
	return convertResponse(resp)
}

func convertMessages(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, mc)
		case RoleTool:
			// one message per result; OpenAI rejects grouped tool responses
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}
	return out
}

func buildCallOptions(req *Request) []llms.CallOption {
	var opts []llms.CallOption
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	if len(req.Tools) > 0 && req.ToolChoice != ToolChoiceNone {
		tools := make([]llms.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		opts = append(opts, llms.WithTools(tools))
		if req.ToolChoice != "" {
			opts = append(opts, llms.WithToolChoice(req.ToolChoice))
		}
	}
	return opts
}

func convertResponse(resp *llms.ContentResponse) (*Response, error) {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, ErrEmptyResponse
	}
	choice := resp.Choices[0]
	out := &Response{Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: []byte(tc.FunctionCall.Arguments),
		})
	}
	return out, nil
}
