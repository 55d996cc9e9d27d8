package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/preflight"
	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/packs"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// AuditURI is the resource holding the current audit report.
const AuditURI = "preflight://audit"

// Engine defines what the MCP server needs from the preflight facade.
type Engine interface {
	Evaluate(ctx context.Context, payload domain.Payload) (*domain.RunResult, error)
	Audit(ctx context.Context) (*domain.AuditReport, error)
	PackStatus(ctx context.Context) (*domain.PackStatus, error)
	Packs() *packs.Manager
}

var _ Engine = (*preflight.Engine)(nil)

// EvaluateArgs are the arguments of evaluate_request.
type EvaluateArgs struct {
	Payload string `json:"payload"`
}

// ValidateArgs are the arguments of validate_pack.
type ValidateArgs struct {
	PackID string `json:"pack_id,omitempty"`
}

// PackStatusResponse joins the last-run comparison with the pack bookkeeping.
type PackStatusResponse struct {
	LastRun *domain.PackStatus `json:"last_run" jsonschema_description:"Active pack compared with the pack stamped in the last run"`
	Admin   *packs.Status      `json:"admin" jsonschema_description:"Active pack, activation history and available backups"`
}

// ListPacksResponse wraps the pack list in an object.
type ListPacksResponse struct {
	Packs []domain.Pack `json:"packs" jsonschema_description:"Registered packs plus the implicit default"`
}

// Server wraps the Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger. It must not write to stdout when serving stdio.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("preflight-mcp", preflight.Version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
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
	s.mcpServer.AddTool(mcp.NewTool("evaluate_request",
		mcp.WithDescription("Run a document-generation request through the preflight pipeline. Returns every stage artifact; state is 'blocked' when the gate refused it."),
		mcp.WithString("payload", mcp.Required(), mcp.Description("JSON object with at least 'topic' and 'outline'")),
	), mcp.NewStructuredToolHandler(s.handleEvaluate))

	s.mcpServer.AddTool(mcp.NewTool("audit_report",
		mcp.WithDescription("Recompute the audit of the last run: per-rule hash checks, missing artifacts and whether it can be replayed."),
	), mcp.NewStructuredToolHandler(s.handleAudit))

	s.mcpServer.AddTool(mcp.NewTool("pack_status",
		mcp.WithDescription("Show the active pack, whether it changed since the last run, and the activation history."),
		mcp.WithOutputSchema[PackStatusResponse](),
	), mcp.NewStructuredToolHandler(s.handlePackStatus))

	s.mcpServer.AddTool(mcp.NewTool("validate_pack",
		mcp.WithDescription("Verify a pack's files against its manifest hashes."),
		mcp.WithString("pack_id", mcp.Description("Pack to validate; defaults to the active pack")),
		mcp.WithOutputSchema[domain.ValidationReport](),
	), mcp.NewStructuredToolHandler(s.handleValidate))

	s.mcpServer.AddTool(mcp.NewTool("list_packs",
		mcp.WithDescription("List the registered packs and mark the active one."),
		mcp.WithOutputSchema[ListPacksResponse](),
	), mcp.NewStructuredToolHandler(s.handleListPacks))
}

func (s *Server) handleEvaluate(ctx context.Context, request mcp.CallToolRequest, args EvaluateArgs) (*domain.RunResult, error) {
	var payload domain.Payload
	if err := json.Unmarshal([]byte(args.Payload), &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	res, err := s.engine.Evaluate(ctx, payload)
	if err != nil {
		s.logger.Error("MCP evaluate failed", "error", err)
		return nil, err
	}
	return res, nil
}

func (s *Server) handleAudit(ctx context.Context, request mcp.CallToolRequest, _ map[string]any) (*domain.AuditReport, error) {
	return s.engine.Audit(ctx)
}

func (s *Server) handlePackStatus(ctx context.Context, request mcp.CallToolRequest, _ map[string]any) (PackStatusResponse, error) {
	last, err := s.engine.PackStatus(ctx)
	if err != nil {
		return PackStatusResponse{}, err
	}
	admin, err := s.engine.Packs().Status()
	if err != nil {
		return PackStatusResponse{}, err
	}
	return PackStatusResponse{LastRun: last, Admin: admin}, nil
}

// handleValidate reports integrity problems in the result rather than as a tool error.
func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest, args ValidateArgs) (*domain.ValidationReport, error) {
	rep, err := s.engine.Packs().Validate(args.PackID)
	var ierr *domain.IntegrityError
	if err != nil && !(errors.As(err, &ierr) && rep != nil) {
		return nil, err
	}
	return rep, nil
}

func (s *Server) handleListPacks(ctx context.Context, request mcp.CallToolRequest, _ map[string]any) (ListPacksResponse, error) {
	list, err := s.engine.Packs().List()
	if err != nil {
		return ListPacksResponse{}, err
	}
	return ListPacksResponse{Packs: list}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(AuditURI, "Audit of the last run",
		mcp.WithMIMEType("application/json"),
	), s.readAudit)
}

func (s *Server) readAudit(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	report, err := s.engine.Audit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to audit: %w", err)
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      AuditURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
