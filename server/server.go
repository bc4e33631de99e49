// Package server exposes the orchestrator over HTTP: an SSE chat stream plus
// auxiliary endpoints for tool approvals, feedback and conversation access.
// Identity resolution happens upstream; the server trusts the X-Tenant-ID,
// X-User-ID and X-School-ID headers it receives.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/educaia/agenthub/core"
	"github.com/educaia/agenthub/engine"
	"github.com/educaia/agenthub/logging"
)

// Options configures a Server.
type Options struct {
	Addr          string
	Engine        *engine.Engine
	Conversations core.ConversationStore
	Feedback      core.FeedbackStore
	Logger        logging.Logger
}

// Server is the HTTP transport adapter.
type Server struct {
	addr          string
	engine        *engine.Engine
	conversations core.ConversationStore
	feedback      core.FeedbackStore
	logger        logging.Logger

	httpServer *http.Server
	boundAddr  string
}

// New constructs a Server. Engine and both stores are required.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, &core.ConfigurationError{Component: "server", Message: "engine is required"}
	}
	if opts.Conversations == nil {
		return nil, &core.ConfigurationError{Component: "server", Message: "conversation store is required"}
	}
	if opts.Feedback == nil {
		return nil, &core.ConfigurationError{Component: "server", Message: "feedback store is required"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Server{
		addr:          opts.Addr,
		engine:        opts.Engine,
		conversations: opts.Conversations,
		feedback:      opts.Feedback,
		logger:        logger,
	}, nil
}

// Handler returns the routed HTTP handler, usable directly in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /v1/tools/approvals", s.handleApproval)
	mux.HandleFunc("POST /v1/feedback", s.handleFeedback)
	mux.HandleFunc("GET /v1/conversations", s.handleListConversations)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /v1/conversations/{id}", s.handleDeleteConversation)
	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("server.started", "addr", s.boundAddr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server.failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the actual bound address after Start.
func (s *Server) Addr() string { return s.boundAddr }

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// scopeFromRequest extracts the identity headers set by the upstream gateway.
func scopeFromRequest(r *http.Request) core.Scope {
	return core.Scope{
		TenantID: r.Header.Get("X-Tenant-ID"),
		UserID:   r.Header.Get("X-User-ID"),
		SchoolID: r.Header.Get("X-School-ID"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps internal error types to HTTP status codes and a JSON body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	var (
		authErr   *core.AuthContextError
		cfgErr    *core.ConfigurationError
		agentErr  *core.AgentNotFoundError
		notFound  *core.NotFoundError
		persisted *core.PersistenceError
	)
	switch {
	case errors.As(err, &authErr):
		status, msg = http.StatusUnauthorized, authErr.Error()
	case errors.As(err, &cfgErr):
		status, msg = http.StatusBadRequest, cfgErr.Error()
	case errors.As(err, &agentErr):
		status, msg = http.StatusNotFound, agentErr.Error()
	case errors.As(err, &notFound):
		status, msg = http.StatusNotFound, notFound.Error()
	case errors.Is(err, core.ErrConversationBusy):
		status, msg = http.StatusConflict, core.ErrConversationBusy.Error()
	case errors.Is(err, engine.ErrApprovalNotFound):
		status, msg = http.StatusNotFound, engine.ErrApprovalNotFound.Error()
	case errors.As(err, &persisted):
		msg = "storage failure"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("server.request.failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &core.ConfigurationError{Component: "server", Message: "invalid request body: " + err.Error()}
	}
	return nil
}
