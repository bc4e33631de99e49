package model

import (
	"context"
	"fmt"

	"github.com/educaia/agenthub/core"
)

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Canned completions are keyed by the last user text in the request.
type MockModel struct {
	info      Info
	responses map[string]string
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider, SupportsTools: true},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Generate implements Model; emits optional streaming char chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		inputText := req.Messages[len(req.Messages)-1].Text()
		full := m.responses[inputText]
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Message: core.NewMessage(core.RoleAssistant, core.TextPart{Text: string(r)}),
				}:
				}
			}
		}
		respCh <- Response{
			Partial:      false,
			Message:      core.NewMessage(core.RoleAssistant, core.TextPart{Text: full}),
			FinishReason: "stop",
			Usage: &core.Usage{
				PromptTokens:     len(inputText),
				CompletionTokens: len(full),
				TotalTokens:      len(inputText) + len(full),
			},
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
