package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/engine"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamRequest struct {
	Messages       []chatMessage `json:"messages"`
	ConversationID string        `json:"conversationId,omitempty"`
	Agent          string        `json:"agent,omitempty"`
	Provider       string        `json:"provider,omitempty"`
	Model          string        `json:"model,omitempty"`
	ResponseMode   string        `json:"responseMode,omitempty"`
	SendReasoning  bool          `json:"sendReasoning,omitempty"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int64         `json:"maxTokens,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromRequest(r)
	if err := scope.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	var body chatStreamRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	if len(body.Messages) == 0 {
		s.writeError(w, &core.ConfigurationError{Component: "server", Message: "request contains no user message"})
		return
	}
	last := body.Messages[len(body.Messages)-1]
	if last.Role != core.RoleUser || last.Content == "" {
		s.writeError(w, &core.ConfigurationError{Component: "server", Message: "the final message must be a non-empty user message"})
		return
	}

	// Earlier entries seed a new conversation. For an ongoing conversation
	// the stored history is authoritative and the client echo is dropped.
	var seed []core.Message
	if body.ConversationID == "" {
		var err error
		seed, err = seedMessages(body.Messages[:len(body.Messages)-1])
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	sink, err := newSSESink(w)
	if err != nil {
		s.writeError(w, &core.ConfigurationError{Component: "server", Message: err.Error()})
		return
	}

	err = s.engine.Stream(r.Context(), engine.ChatRequest{
		Scope:          scope,
		Agent:          body.Agent,
		ConversationID: body.ConversationID,
		Message:        last.Content,
		Seed:           seed,
		Provider:       body.Provider,
		Model:          body.Model,
		ResponseMode:   body.ResponseMode,
		SendReasoning:  body.SendReasoning,
		Temperature:    body.Temperature,
		MaxTokens:      body.MaxTokens,
	}, sink)
	if err != nil && !sink.Started() {
		s.writeError(w, err)
	}
}

// seedMessages converts request history entries into stored messages.
func seedMessages(entries []chatMessage) ([]core.Message, error) {
	seed := make([]core.Message, 0, len(entries))
	for _, entry := range entries {
		switch entry.Role {
		case core.RoleUser:
			seed = append(seed, core.NewUserMessage(entry.Content))
		case core.RoleAssistant:
			seed = append(seed, core.NewMessage(core.RoleAssistant, core.TextPart{Text: entry.Content}))
		default:
			return nil, &core.ConfigurationError{
				Component: "server",
				Message:   fmt.Sprintf("unsupported message role %q", entry.Role),
			}
		}
	}
	return seed, nil
}

type approvalRequest struct {
	ToolCallID     string `json:"toolCallId"`
	Approved       bool   `json:"approved"`
	ConversationID string `json:"conversationId,omitempty"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	var body approvalRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.ToolCallID == "" {
		s.writeError(w, &core.ConfigurationError{Component: "server", Message: "toolCallId is required"})
		return
	}
	if err := s.engine.ResolveApproval(body.ToolCallID, body.Approved); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type feedbackRequest struct {
	MessageID    string   `json:"messageId"`
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	FeedbackType string   `json:"feedbackType"`
	Comment      string   `json:"comment,omitempty"`
	ContextUsed  string   `json:"contextUsed,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	ModelUsed    string   `json:"modelUsed,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromRequest(r)
	if err := scope.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	var body feedbackRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.MessageID == "" || body.FeedbackType == "" {
		s.writeError(w, &core.ConfigurationError{Component: "server", Message: "messageId and feedbackType are required"})
		return
	}

	record := core.FeedbackRecord{
		ID:           core.NewID(),
		MessageID:    body.MessageID,
		TenantID:     scope.TenantID,
		Question:     body.Question,
		Answer:       body.Answer,
		FeedbackType: body.FeedbackType,
		Comment:      body.Comment,
		ContextUsed:  body.ContextUsed,
		Sources:      body.Sources,
		ModelUsed:    body.ModelUsed,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.feedback.Save(r.Context(), record); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": record.ID})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromRequest(r)
	if err := scope.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, &core.ConfigurationError{Component: "server", Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	summaries, err := s.conversations.List(r.Context(), scope, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []core.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromRequest(r)
	if err := scope.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	id := r.PathValue("id")
	messages, err := s.conversations.History(r.Context(), scope, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []core.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "messages": messages})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromRequest(r)
	if err := scope.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.conversations.Delete(r.Context(), scope, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
