package core

import (
	"encoding/json"
	"time"
)

// EventType enumerates the stream event kinds delivered to clients.
type EventType string

// Stream event kinds. Done and Error are terminal; exactly one terminal event
// is emitted per stream and it is the last event.
const (
	EventToken      EventType = "token"
	EventReasoning  EventType = "reasoning"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventUsage      EventType = "usage"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// StreamEvent is one unit of the ordered output sequence produced during
// generation. Data shape depends on Type.
type StreamEvent struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// TokenData is the payload of a token event: one provider text delta,
// forwarded in emission order.
type TokenData struct {
	Text string `json:"text"`
}

// ReasoningData is the payload of a reasoning event: one provider reasoning
// delta, emitted only when the request asked for reasoning.
type ReasoningData struct {
	Text string `json:"text"`
}

// Usage captures token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// DoneData is the payload of the terminal done event.
type DoneData struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Answer         string `json:"answer"`
	Model          string `json:"model,omitempty"`
	Usage          *Usage `json:"usage,omitempty"`
}

// ErrorData is the payload of the terminal error event. Message is
// human-safe; internal detail stays in the logs.
type ErrorData struct {
	Message string `json:"message"`
}

// NewStreamEvent marshals the payload and stamps the event. Marshal failures
// cannot occur for the payload types above, so the data is embedded as-is.
func NewStreamEvent(t EventType, data any) StreamEvent {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte(`{}`)
	}
	return StreamEvent{Type: t, Data: raw, Timestamp: time.Now().UTC()}
}

// Sink receives the ordered event stream of one invocation. Implementations
// adapt the engine to a transport (SSE response, test buffer). Emit returns
// an error when the client is gone; the engine stops at the next suspension
// point. Close is called exactly once after the terminal event.
type Sink interface {
	Emit(ev StreamEvent) error
	Close() error
}

// ChannelSink adapts a Go channel to the Sink interface for in-process
// consumers and tests.
type ChannelSink struct {
	ch chan StreamEvent
}

// NewChannelSink creates a sink backed by a buffered channel.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan StreamEvent, buffer)}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan StreamEvent { return s.ch }

// Emit delivers the event to the channel.
func (s *ChannelSink) Emit(ev StreamEvent) error {
	s.ch <- ev
	return nil
}

// Close closes the channel; consumers ranging over Events terminate.
func (s *ChannelSink) Close() error {
	close(s.ch)
	return nil
}
