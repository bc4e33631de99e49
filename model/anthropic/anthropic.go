// Package anthropic provides a model.Model implementation backed by the
// Anthropic Messages API, including streaming and tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/model"
)

// Options configure the Anthropic model adapter (model id, temperature, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
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

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- wrapError(err)
			return
		}
		send(ctx, out, finalResponse(resp))
	}()

	return out, errCh
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

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	modelID := m.opts.Model
	if req.Model != "" {
		modelID = anthropic.Model(req.Model)
	}
	temperature := m.opts.Temperature
	if req.Settings.Temperature > 0 {
		temperature = req.Settings.Temperature
	}
	maxTokens := m.opts.MaxTokens
	if req.Settings.MaxTokens > 0 {
		maxTokens = req.Settings.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       modelID,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

// buildMessages converts normalized messages to the Anthropic message format.
// Tool results become tool_result blocks in a user message following the
// assistant turn that requested them, as the Messages API requires.
func buildMessages(messages []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleUser:
			if text := msg.Text(); text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		case core.RoleAssistant:
			out = append(out, expandAssistant(msg)...)
		case core.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, tr := range msg.ToolResults() {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ID, toolResultText(tr), tr.Error != "" || tr.Rejected))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return out
}

// expandAssistant converts one stored assistant message into alternating
// assistant / user turns. Assistant records persisted by the engine interleave
// text, tool_use and tool_result parts of a whole answer; the Messages API
// wants tool results in a user message directly after the assistant turn that
// requested them.
func expandAssistant(msg core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var content []anthropic.ContentBlockParamUnion
	var results []anthropic.ContentBlockParamUnion

	flushContent := func() {
		if len(content) > 0 {
			out = append(out, anthropic.NewAssistantMessage(content...))
			content = nil
		}
	}
	flushResults := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, p := range msg.Parts {
		switch part := p.(type) {
		case core.TextPart:
			flushResults()
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.ToolCallPart:
			flushResults()
			var input any
			if len(part.ToolCall.Arguments) > 0 {
				if err := json.Unmarshal(part.ToolCall.Arguments, &input); err != nil {
					input = string(part.ToolCall.Arguments)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(part.ToolCall.ID, input, part.ToolCall.Name))
		case core.ToolResultPart:
			flushContent()
			tr := part.ToolResult
			results = append(results, anthropic.NewToolResultBlock(tr.ID, toolResultText(tr), tr.Error != "" || tr.Rejected))
		}
	}
	flushResults()
	flushContent()
	return out
}

func toolResultText(tr core.ToolResult) string {
	if tr.Rejected {
		return "tool call was rejected by the user"
	}
	if tr.Error != "" {
		return tr.Error
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

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tdef := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := tdef.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if req, ok := tdef.Parameters["required"]; ok {
			schema.Required = toStringSlice(req)
		}
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tdef.Name,
				Description: anthropic.String(tdef.Description),
				InputSchema: schema,
			},
		}
	}
	return out
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// handleStreaming consumes the SSE stream, forwarding text deltas as partial
// responses and accumulating the final message (including tool_use blocks).
func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	acc := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			errCh <- wrapError(err)
			return
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					if !send(ctx, out, model.Response{
						Partial: true,
						Message: core.NewMessage(core.RoleAssistant, core.TextPart{Text: delta.Text}),
					}) {
						return
					}
				}
			case anthropic.ThinkingDelta:
				if delta.Thinking != "" {
					if !send(ctx, out, model.Response{
						Partial:   true,
						Reasoning: true,
						Message:   core.NewMessage(core.RoleAssistant, core.TextPart{Text: delta.Thinking}),
					}) {
						return
					}
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- wrapError(err)
		return
	}
	send(ctx, out, finalResponse(&acc))
}

// finalResponse converts a complete Anthropic message into the normalized
// final chunk.
func finalResponse(resp *anthropic.Message) model.Response {
	var parts []core.Part
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				parts = append(parts, core.TextPart{Text: textBlock.Text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			parts = append(parts, core.ToolCallPart{ToolCall: core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: json.RawMessage(toolBlock.Input),
			}})
		}
	}

	finishReason := "stop"
	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		finishReason = "tool_calls"
	case anthropic.StopReasonMaxTokens:
		finishReason = "length"
	}

	return model.Response{
		Partial:      false,
		Message:      core.NewMessage(core.RoleAssistant, parts...),
		FinishReason: finishReason,
		Usage: &core.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

// wrapError classifies SDK errors so the engine can retry transient failures.
func wrapError(err error) error {
	var apiErr *anthropic.Error
	transient := false
	if errors.As(err, &apiErr) {
		transient = apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return &core.ProviderError{Provider: "anthropic", Transient: transient, Err: err}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic", SupportsTools: true}
}
