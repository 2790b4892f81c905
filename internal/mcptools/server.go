// Package mcptools exposes the link backend as MCP tools over stdio for the
// configured local user.
package mcptools

import (
	"context"
	"fmt"
	"os"

	"github.com/brizzai/plaid-link/internal/apispec"
	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/linkservice"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/brizzai/plaid-link/internal/txsync"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const syncToolName = "sync_transactions"

// Server is the MCP server with the link tools registered.
type Server struct {
	mcp      *mcpserver.MCPServer
	tools    *Handler
	handlers map[string]mcpserver.ToolHandlerFunc
	names    []string
}

// NewServer registers one tool per API operation, plus the transaction sync
// tool, honoring the adjustments file.
func NewServer(cfg *config.Config, spec *apispec.Spec, svc *linkservice.Service, syncer *txsync.Syncer) (*Server, error) {
	adjuster := apispec.NewAdjuster()
	if err := adjuster.Load(cfg.MCP.AdjustmentsFile); err != nil {
		return nil, fmt.Errorf("failed to load adjustments file: %w", err)
	}

	srv := &Server{
		mcp:      mcpserver.NewMCPServer(cfg.Server.Name, config.Version(), mcpserver.WithToolCapabilities(false)),
		tools:    NewHandler(cfg.Link.DefaultUserID, svc, syncer),
		handlers: make(map[string]mcpserver.ToolHandlerFunc),
	}

	funcs := srv.tools.Funcs()
	for _, tool := range spec.Tools(adjuster) {
		fn, ok := funcs[tool.Name]
		if !ok {
			logger.Warn("No handler for tool", zap.String("tool", tool.Name))
			continue
		}
		srv.addTool(tool, fn)
	}
	if adjuster.Enabled(syncToolName) {
		srv.addTool(syncTool(adjuster), funcs[syncToolName])
	}
	return srv, nil
}

func (s *Server) addTool(tool mcp.Tool, fn ToolFunc) {
	logger.Info("Adding tool", zap.String("name", tool.Name))
	h := s.tools.CreateHandler(tool, fn)
	s.handlers[tool.Name] = h
	s.names = append(s.names, tool.Name)
	s.mcp.AddTool(tool, h)
}

func syncTool(adj *apispec.Adjuster) mcp.Tool {
	desc := "Fetch recent transactions, credit card liabilities and recurring streams from Plaid for linked items and import them. Existing transactions and liabilities are kept as history."
	return mcp.NewTool(syncToolName,
		mcp.WithDescription(adj.Description(syncToolName, desc)),
		mcp.WithString("item_id",
			mcp.Description("Only sync this item (Plaid item id or local id). All items when empty."),
		),
		mcp.WithNumber("days",
			mcp.Description("Look-back window in days."),
			mcp.Min(1),
			mcp.Max(730),
		),
		mcp.WithArray("products",
			mcp.Description("What to fetch. The configured products when empty."),
			mcp.Items(map[string]any{"type": "string", "enum": txsync.Products}),
		),
	)
}

// Catalog lists every tool the server can expose, without adjustments.
func Catalog(spec *apispec.Spec) []mcp.Tool {
	none := apispec.NewAdjuster()
	return append(spec.Tools(none), syncTool(none))
}

// ToolNames lists the registered tools in registration order.
func (s *Server) ToolNames() []string {
	return s.names
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}

// ServeSTDIO serves MCP over standard input and output until ctx is done.
func (s *Server) ServeSTDIO(ctx context.Context) error {
	logger.Info("Starting MCP server via STDIO")
	stdioServer := mcpserver.NewStdioServer(s.mcp)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// Module provides the MCP server
var Module = fx.Module("mcptools",
	fx.Provide(NewServer),
)
