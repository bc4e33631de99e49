package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles. Tool results are carried in messages with RoleTool so a
// provider can resume generation after a tool round.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one ordered entry of a conversation: a role plus heterogeneous
// parts. A tool-result part must reference a tool-call id that appeared in a
// prior message of the same conversation; the engine maintains that invariant.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates an empty message with a fresh id and UTC timestamp.
func NewMessage(role string, parts ...Part) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}
}

// NewUserMessage is a convenience wrapper for a user-authored text message.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, TextPart{Text: text})
}

// NewToolResultMessage records the outcome of a tool call as a tool-role message.
func NewToolResultMessage(result ToolResult) Message {
	return NewMessage(RoleTool, ToolResultPart{ToolResult: result})
}

// NewID generates a new unique identifier for messages, streams and tool calls.
func NewID() string { return uuid.NewString() }

// Text concatenates all text parts of the message in order.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// ToolCalls returns any tool-call parts preserving their original order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc.ToolCall)
		}
	}
	return calls
}

// ToolResults returns any tool-result parts preserving their original order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			results = append(results, tr.ToolResult)
		}
	}
	return results
}

// partEnvelope is the wire representation of a Part. The type tag selects
// which payload field is populated.
type partEnvelope struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

const (
	partTypeText       = "text"
	partTypeToolCall   = "tool_call"
	partTypeToolResult = "tool_result"
)

// MarshalJSON encodes the heterogeneous parts slice via tagged envelopes so
// messages survive a store round trip.
func (m Message) MarshalJSON() ([]byte, error) {
	envelopes := make([]partEnvelope, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch v := p.(type) {
		case TextPart:
			envelopes = append(envelopes, partEnvelope{Type: partTypeText, Text: v.Text})
		case ToolCallPart:
			tc := v.ToolCall
			envelopes = append(envelopes, partEnvelope{Type: partTypeToolCall, ToolCall: &tc})
		case ToolResultPart:
			tr := v.ToolResult
			envelopes = append(envelopes, partEnvelope{Type: partTypeToolResult, ToolResult: &tr})
		default:
			return nil, fmt.Errorf("unknown part type %T", p)
		}
	}
	type alias struct {
		ID        string         `json:"id"`
		Role      string         `json:"role"`
		Parts     []partEnvelope `json:"parts"`
		CreatedAt time.Time      `json:"created_at"`
	}
	return json.Marshal(alias{ID: m.ID, Role: m.Role, Parts: envelopes, CreatedAt: m.CreatedAt})
}

// UnmarshalJSON decodes the tagged envelope representation produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID        string         `json:"id"`
		Role      string         `json:"role"`
		Parts     []partEnvelope `json:"parts"`
		CreatedAt time.Time      `json:"created_at"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	parts := make([]Part, 0, len(a.Parts))
	for _, env := range a.Parts {
		switch env.Type {
		case partTypeText:
			parts = append(parts, TextPart{Text: env.Text})
		case partTypeToolCall:
			if env.ToolCall == nil {
				return fmt.Errorf("tool_call part without payload")
			}
			parts = append(parts, ToolCallPart{ToolCall: *env.ToolCall})
		case partTypeToolResult:
			if env.ToolResult == nil {
				return fmt.Errorf("tool_result part without payload")
			}
			parts = append(parts, ToolResultPart{ToolResult: *env.ToolResult})
		default:
			return fmt.Errorf("unknown part type %q", env.Type)
		}
	}
	m.ID = a.ID
	m.Role = a.Role
	m.Parts = parts
	m.CreatedAt = a.CreatedAt
	return nil
}
