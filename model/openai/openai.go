// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including streaming + tool calling). It adapts the
// normalized Request/Response structures into the SDK's message format and
// back.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/model"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete tool-call parts when a finish reason is
// emitted.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI model adapter. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req)
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts normalized messages into OpenAI chat messages.
// Tool-result messages become tool-role messages correlated by call id;
// assistant messages with tool-call parts become assistant tool call entries.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Text()))
		case core.RoleAssistant:
			messages = append(messages, expandAssistant(msg)...)
		case core.RoleTool:
			for _, tr := range msg.ToolResults() {
				messages = append(messages, openai.ToolMessage(toolResultText(tr), tr.ID))
			}
		}
	}
	return messages
}

// toolResultText renders a tool outcome for the model. Errors and rejections
// are surfaced as text so the model can react in its next turn.
func toolResultText(tr core.ToolResult) string {
	if tr.Rejected {
		return "tool call was rejected by the user"
	}
	if tr.Error != "" {
		return "tool execution failed: " + tr.Error
	}
	if s, ok := tr.Result.(string); ok {
		return s
	}
	raw, err := json.Marshal(tr.Result)
	if err != nil {
		return ""
	}
	return string(raw)
}

// expandAssistant converts one stored assistant message into chat messages.
// Assistant records persisted by the engine interleave text, tool-call and
// tool-result parts of a whole answer; the API wants tool-role messages after
// the assistant entry carrying the corresponding calls.
func expandAssistant(msg core.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	var text strings.Builder
	var toolCalls []openai.ChatCompletionMessageToolCallParam

	flush := func() {
		if text.Len() == 0 && len(toolCalls) == 0 {
			return
		}
		assistant := &openai.ChatCompletionAssistantMessageParam{
			Role:      "assistant",
			ToolCalls: toolCalls,
		}
		if text.Len() > 0 {
			assistant.Content.OfString = openai.String(text.String())
		}
		out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		text.Reset()
		toolCalls = nil
	}

	for _, p := range msg.Parts {
		switch part := p.(type) {
		case core.TextPart:
			text.WriteString(part.Text)
		case core.ToolCallPart:
			tc := part.ToolCall
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   tc.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		case core.ToolResultPart:
			flush()
			tr := part.ToolResult
			out = append(out, openai.ToolMessage(toolResultText(tr), tr.ID))
		}
	}
	flush()
	return out
}

// buildParams assembles the OpenAI request parameters including tool
// definitions and per-request setting overrides.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	modelID := m.opts.Model
	if req.Model != "" {
		modelID = req.Model
	}
	temperature := m.opts.Temperature
	if req.Settings.Temperature > 0 {
		temperature = req.Settings.Temperature
	}
	maxTokens := m.opts.MaxCompletionTokens
	if req.Settings.MaxTokens > 0 {
		maxTokens = req.Settings.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               modelID,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if req.Settings.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(req.Settings.ReasoningEffort)
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Name,
					Description: openai.String(tdef.Description),
					Parameters:  tdef.Parameters,
				},
			}
		}
		params.Tools = tools
	}
	return params
}

// handleStreaming processes streaming responses and forwards partial / final chunks.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var textBuilder strings.Builder
	var usage *core.Usage
	toolAgg := map[int64]*aggCall{}
	toolOrder := []int64{}
	finish := ""
	for stream.Next() {
		ck := stream.Current()
		if ck.Usage.TotalTokens > 0 {
			usage = &core.Usage{
				PromptTokens:     int(ck.Usage.PromptTokens),
				CompletionTokens: int(ck.Usage.CompletionTokens),
				TotalTokens:      int(ck.Usage.TotalTokens),
			}
		}
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				textBuilder.WriteString(ch.Delta.Content)
				if !send(ctx, out, model.Response{
					Partial: true,
					Message: core.NewMessage(core.RoleAssistant, core.TextPart{Text: ch.Delta.Content}),
				}) {
					return
				}
			}
			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
					toolOrder = append(toolOrder, tc.Index)
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					ac.args += tc.Function.Arguments
				}
			}
			if ch.FinishReason != "" {
				finish = ch.FinishReason
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- wrapError(err)
		return
	}

	finalParts := make([]core.Part, 0, len(toolAgg)+1)
	if textBuilder.Len() > 0 {
		finalParts = append(finalParts, core.TextPart{Text: textBuilder.String()})
	}
	for _, idx := range toolOrder {
		ac := toolAgg[idx]
		finalParts = append(finalParts, core.ToolCallPart{ToolCall: core.ToolCall{
			ID:        ac.id,
			Name:      ac.name,
			Arguments: json.RawMessage(ac.args),
		}})
	}
	send(ctx, out, model.Response{
		Partial:      false,
		Message:      core.NewMessage(core.RoleAssistant, finalParts...),
		FinishReason: finish,
		Usage:        usage,
	})
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- wrapError(err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- &core.ProviderError{Provider: "openai", Err: errors.New("no choices returned")}
		return
	}
	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.ToolCallPart{ToolCall: core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}})
	}
	send(ctx, out, model.Response{
		Partial:      false,
		Message:      core.NewMessage(core.RoleAssistant, parts...),
		FinishReason: ch0.FinishReason,
		Usage: &core.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	})
}

// send delivers a response unless the request context ends first, so an
// abandoned consumer cannot strand the producer goroutine on a full buffer.
func send(ctx context.Context, out chan<- model.Response, resp model.Response) bool {
	select {
	case out <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}

// wrapError classifies SDK errors so the engine can apply its retry budget to
// transient failures (rate limits, server errors).
func wrapError(err error) error {
	var apiErr *openai.Error
	transient := false
	if errors.As(err, &apiErr) {
		transient = apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return &core.ProviderError{Provider: "openai", Transient: transient, Err: err}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai", SupportsTools: true}
}
