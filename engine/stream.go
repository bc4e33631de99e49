package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/educaia/agenthub/agent"
	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/model"
	"github.com/educaia/agenthub/tool"
)

// errClientGone marks a sink emit failure: the client stopped consuming, so
// the stream winds down without a terminal event.
var errClientGone = errors.New("stream client gone")

// errTooManyToolRounds marks a model that keeps requesting tools past the
// configured round cap.
var errTooManyToolRounds = errors.New("tool round limit exceeded")

// stream holds the mutable state of one invocation. It is owned by a single
// goroutine; the only concurrent touch point is the approval broker.
type stream struct {
	engine         *Engine
	scope          core.Scope
	agent          *agent.Descriptor
	llm            model.Model
	conversationID string
	messages       []core.Message
	settings       model.Settings
	modelName      string
	sendReasoning  bool
	sink           core.Sink

	usage    core.Usage
	hasUsage bool
}

func (s *stream) run(ctx context.Context) {
	defer s.sink.Close()

	start := time.Now()
	s.engine.logger.Info("engine.stream.start",
		"conversation_id", s.conversationID,
		"agent", s.agent.Name(),
		"tenant_id", s.scope.TenantID,
	)

	err := s.loop(ctx)

	s.engine.logger.Info("engine.stream.end",
		"conversation_id", s.conversationID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if err == nil {
		return
	}
	if errors.Is(err, errClientGone) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	s.engine.logger.Error("engine.stream.failed",
		"conversation_id", s.conversationID,
		"error", err,
	)
	_ = s.emit(core.NewStreamEvent(core.EventError, core.ErrorData{Message: safeMessage(err)}))
}

// loop drives model turns until the provider finishes without requesting
// tools. Tool failures are reflected in-band and never abort the loop; only
// orchestration-level failures return an error.
func (s *stream) loop(ctx context.Context) error {
	toolDefs := tool.Definitions(s.agent.Tools())

	// The conversation records one assistant message per answer, carrying
	// every part of every turn. The per-turn messages only live in the
	// working set fed back to the provider.
	var recordParts []core.Part

	toolRounds := 0
	for {
		req := model.Request{
			Instructions: s.agent.Instructions(),
			Messages:     s.messages,
			Tools:        toolDefs,
			Model:        s.modelName,
			Settings:     s.settings,
			Stream:       true,
		}

		final, err := s.generate(ctx, req)
		if err != nil {
			return err
		}
		if final.Usage != nil {
			s.usage.PromptTokens += final.Usage.PromptTokens
			s.usage.CompletionTokens += final.Usage.CompletionTokens
			s.usage.TotalTokens += final.Usage.TotalTokens
			s.hasUsage = true
		}

		assistant := final.Message
		s.messages = append(s.messages, assistant)
		recordParts = append(recordParts, assistant.Parts...)

		calls := assistant.ToolCalls()
		if len(calls) == 0 {
			record := core.NewMessage(core.RoleAssistant, recordParts...)
			if err := s.engine.conversations.Append(ctx, s.scope, s.conversationID, record); err != nil {
				return err
			}
			return s.finish(record)
		}

		toolRounds++
		if toolRounds > s.engine.limits.MaxToolRounds {
			return errTooManyToolRounds
		}

		for _, call := range calls {
			if err := s.emit(core.NewStreamEvent(core.EventToolCall, call)); err != nil {
				return err
			}

			result, err := s.executeCall(ctx, call)
			if err != nil {
				return err
			}

			s.messages = append(s.messages, core.NewToolResultMessage(result))
			recordParts = append(recordParts, core.ToolResultPart{ToolResult: result})

			if err := s.emit(core.NewStreamEvent(core.EventToolResult, result)); err != nil {
				return err
			}
		}
	}
}

// finish emits the usage (when reported) and terminal done events.
func (s *stream) finish(assistant core.Message) error {
	var usage *core.Usage
	if s.hasUsage {
		u := s.usage
		usage = &u
		if err := s.emit(core.NewStreamEvent(core.EventUsage, u)); err != nil {
			return err
		}
	}

	info := s.llm.Info()
	modelUsed := s.modelName
	if modelUsed == "" {
		modelUsed = info.Name
	}
	return s.emit(core.NewStreamEvent(core.EventDone, core.DoneData{
		ConversationID: s.conversationID,
		MessageID:      assistant.ID,
		Answer:         assistant.Text(),
		Model:          info.Provider + "/" + modelUsed,
		Usage:          usage,
	}))
}

// generate runs one provider pass, retrying transient failures while no token
// has reached the client yet.
func (s *stream) generate(ctx context.Context, req model.Request) (model.Response, error) {
	backoff := s.engine.limits.RetryBackoff
	for attempt := 0; ; attempt++ {
		final, tokens, err := s.generateOnce(ctx, req)
		if err == nil {
			return final, nil
		}

		var pe *core.ProviderError
		retryable := errors.As(err, &pe) && pe.Transient && tokens == 0
		if !retryable || attempt >= s.engine.limits.ProviderRetries {
			return model.Response{}, err
		}

		s.engine.logger.Warn("engine.provider.retry",
			"conversation_id", s.conversationID,
			"attempt", attempt+1,
			"error", err,
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return model.Response{}, ctx.Err()
		}
		backoff *= 2
	}
}

// generateOnce consumes one Generate sequence, forwarding partial text deltas
// as token events in provider order and returning the final chunk.
func (s *stream) generateOnce(ctx context.Context, req model.Request) (model.Response, int, error) {
	respCh, errCh := s.llm.Generate(ctx, req)

	var (
		final  model.Response
		got    bool
		tokens int
	)
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				text := resp.Message.Text()
				if text == "" {
					continue
				}
				if resp.Reasoning {
					// Reasoning deltas reach the client only on request.
					if !s.sendReasoning {
						continue
					}
					if err := s.emit(core.NewStreamEvent(core.EventReasoning, core.ReasoningData{Text: text})); err != nil {
						return model.Response{}, tokens, err
					}
					tokens++
					continue
				}
				if err := s.emit(core.NewStreamEvent(core.EventToken, core.TokenData{Text: text})); err != nil {
					return model.Response{}, tokens, err
				}
				tokens++
				continue
			}
			final, got = resp, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return model.Response{}, tokens, err
			}
		case <-ctx.Done():
			return model.Response{}, tokens, ctx.Err()
		}
	}
	if !got {
		return model.Response{}, tokens, &core.ProviderError{
			Provider: s.llm.Info().Provider,
			Err:      fmt.Errorf("stream ended without a final response"),
		}
	}
	return final, tokens, nil
}

// executeCall resolves and runs one tool call, gating sensitive tools on
// external approval. Tool-level failures come back inside the ToolResult; the
// returned error is reserved for stream-fatal conditions (cancellation).
func (s *stream) executeCall(ctx context.Context, call core.ToolCall) (core.ToolResult, error) {
	result := core.ToolResult{ID: call.ID, Name: call.Name}

	t, ok := s.agent.Tool(call.Name)
	if !ok {
		result.Error = fmt.Sprintf("tool %q is not bound to agent %q", call.Name, s.agent.Name())
		return result, nil
	}

	if t.Sensitive() {
		approved, err := s.engine.approvals.await(ctx, call.ID, s.engine.limits.ApprovalTTL)
		if err != nil {
			return result, err
		}
		if !approved {
			result.Rejected = true
			result.Error = "tool call was not approved"
			s.engine.logger.Info("engine.tool.rejected",
				"conversation_id", s.conversationID,
				"tool", call.Name,
				"tool_call_id", call.ID,
			)
			return result, nil
		}
	}

	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			result.Error = tool.NewToolError(call.Name, "arguments are not a JSON object", tool.CodeValidation).Error()
			return result, nil
		}
	}

	start := time.Now()
	out, err := s.invoke(ctx, t, call, args)
	s.engine.logger.Info("engine.tool.executed",
		"conversation_id", s.conversationID,
		"tool", call.Name,
		"tool_call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Error = err.Error()
		return result, nil
	}
	result.Result = out
	return result, nil
}

// invoke runs the tool under the per-call timeout with panic containment.
func (s *stream) invoke(ctx context.Context, t tool.Tool, call core.ToolCall, args map[string]any) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.engine.limits.ToolTimeout)
	defer cancel()

	toolCtx := core.NewToolContext(callCtx, s.scope, s.conversationID, call.ID, s.engine.logger)

	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: tool.NewToolError(call.Name, fmt.Sprintf("panic: %v", r), tool.CodeExecution)}
			}
		}()
		res, err := t.Call(toolCtx, args)
		ch <- outcome{result: res, err: err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, tool.NewToolError(call.Name, "execution timed out", tool.CodeTimeout)
	}
}

func (s *stream) emit(ev core.StreamEvent) error {
	if err := s.sink.Emit(ev); err != nil {
		return fmt.Errorf("%w: %v", errClientGone, err)
	}
	return nil
}

// safeMessage maps internal failures to client-facing text without leaking
// provider or storage detail.
func safeMessage(err error) string {
	var pe *core.ProviderError
	if errors.As(err, &pe) {
		return "the model provider is currently unavailable"
	}
	var se *core.PersistenceError
	if errors.As(err, &se) {
		return "failed to save the conversation"
	}
	if errors.Is(err, errTooManyToolRounds) {
		return "the agent exceeded the tool call limit for one answer"
	}
	return "an internal error occurred"
}
