package core

import (
	"errors"
	"fmt"
)

// ErrConversationBusy signals that a stream is already active for the target
// conversation. Interleaved writes would corrupt message ordering, so the
// second request is rejected rather than queued.
var ErrConversationBusy = errors.New("conversation has an active stream")

// ConfigurationError reports invalid agent or tool wiring detected at setup.
// It is fatal at construction time and never reaches a live stream.
type ConfigurationError struct {
	Component string
	Message   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
}

// AuthContextError reports missing tenant/user identity. Requests failing
// with it are rejected before streaming starts.
type AuthContextError struct {
	Missing string
}

func (e *AuthContextError) Error() string {
	return fmt.Sprintf("auth context incomplete: missing %s", e.Missing)
}

// AgentNotFoundError reports a registry lookup miss.
type AgentNotFoundError struct {
	Name string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %q not found", e.Name)
}

// NotFoundError reports a conversation (or other scoped record) that does not
// exist within the caller's scope. Cross-tenant access deliberately yields
// the same error as a genuinely missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ProviderError wraps a model provider failure. Transient failures (rate
// limits, connection resets) are retried within the engine's budget; the rest
// escalate to a terminal stream error.
type ProviderError struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError wraps a conversation store failure. It always escalates to
// a terminal stream error since conversation integrity cannot be guaranteed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
