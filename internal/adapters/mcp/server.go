// Package mcp exposes the session Manager as a Model Context Protocol
// server, so agent hosts can drive attempts as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/studyhall/attempts/pkg/session"
)

// Server wraps the session Manager and exposes it as an MCP Server.
type Server struct {
	manager   *session.Manager
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(manager *session.Manager, version string) *Server {
	s := &Server{
		manager:   manager,
		mcpServer: server.NewMCPServer("attempts-mcp", version),
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a new attempt session for a subject on an activity."),
		mcp.WithString("subject_id", mcp.Required(), mcp.Description("Id of the acting principal")),
		mcp.WithString("activity_id", mcp.Required(), mcp.Description("Id of the activity to attempt")),
	), s.handleStartSession)

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Read the current state of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.handleGetSession)

	s.mcpServer.AddTool(mcp.NewTool("submit_answer",
		mcp.WithDescription("Record a response for one step. Reports accepted=false on a version conflict instead of retrying."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithNumber("step_id", mcp.Required(), mcp.Description("Step being answered")),
		mcp.WithString("response", mcp.Required(), mcp.Description("Submitted response")),
	), s.handleSubmitAnswer)

	s.mcpServer.AddTool(mcp.NewTool("complete_session",
		mcp.WithDescription("Complete a session. Idempotent; reports success=false if already closed."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.handleCompleteSession)

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List a subject's sessions, most recent first."),
		mcp.WithString("subject_id", mcp.Required(), mcp.Description("Id of the acting principal")),
	), s.handleListSessions)
}

func textJSON(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := request.RequireString("subject_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	activityID, err := request.RequireString("activity_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	attempt, err := s.manager.Create(ctx, subjectID, activityID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start session failed: %v", err)), nil
	}
	return textJSON(attempt)
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	attempt, err := s.manager.Get(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get session failed: %v", err)), nil
	}
	return textJSON(attempt)
}

func (s *Server) handleSubmitAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stepID, err := request.RequireInt("step_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	response, err := request.RequireString("response")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	accepted, err := s.manager.UpdateProgress(ctx, sessionID, stepID, response)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("submit answer failed: %v", err)), nil
	}
	return textJSON(map[string]bool{"accepted": accepted})
}

func (s *Server) handleCompleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	done, err := s.manager.Complete(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("complete session failed: %v", err)), nil
	}
	return textJSON(map[string]bool{"success": done})
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := request.RequireString("subject_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summaries, err := s.manager.ListBySubject(ctx, subjectID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
	}
	return textJSON(summaries)
}
