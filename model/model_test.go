package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educaia/agenthub/core"
)

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()

	first := NewMockModel("gpt-4o-mini", "openai")
	second := NewMockModel("claude-sonnet", "anthropic")
	reg.Register(first)
	reg.Register(second)

	// Empty provider falls back to the first registered model.
	m, err := reg.Resolve("", "")
	require.NoError(t, err)
	assert.Same(t, first, m)

	m, err = reg.Resolve("anthropic", "")
	require.NoError(t, err)
	assert.Same(t, second, m)

	m, err = reg.Resolve("openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Same(t, first, m)

	// Unknown model name degrades to the provider's registered model.
	m, err = reg.Resolve("openai", "gpt-5")
	require.NoError(t, err)
	assert.Same(t, first, m)

	_, err = reg.Resolve("gemini", "")
	assert.Error(t, err)
}

func TestRegistryEmpty(t *testing.T) {
	_, err := NewRegistry().Resolve("", "")
	assert.Error(t, err)
}

func TestMockModelStreaming(t *testing.T) {
	m := NewMockModel("demo", "mock")
	m.AddResponse("oi", "olá")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []core.Message{core.NewUserMessage("oi")},
		Stream:   true,
	})

	var partials []string
	var final *Response
	for resp := range respCh {
		if resp.Partial {
			partials = append(partials, resp.Message.Text())
			continue
		}
		r := resp
		final = &r
	}
	require.NoError(t, <-errCh)

	// One rune per delta, concatenating to the final text.
	assert.Equal(t, []string{"o", "l", "á"}, partials)
	require.NotNil(t, final)
	assert.Equal(t, "olá", final.Message.Text())
	assert.Equal(t, "stop", final.FinishReason)
	require.NotNil(t, final.Usage)
	assert.Equal(t, final.Usage.PromptTokens+final.Usage.CompletionTokens, final.Usage.TotalTokens)
}

func TestMockModelNoMessages(t *testing.T) {
	m := NewMockModel("demo", "mock")
	respCh, errCh := m.Generate(context.Background(), Request{})
	for range respCh {
	}
	assert.Error(t, <-errCh)
}
