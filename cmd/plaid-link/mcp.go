package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/brizzai/plaid-link/internal/apispec"
	"github.com/brizzai/plaid-link/internal/linkservice"
	"github.com/brizzai/plaid-link/internal/mcptools"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/store"
	"github.com/brizzai/plaid-link/internal/txsync"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the link operations as MCP tools over stdio",
		Long: `Serve the link operations as MCP tools over stdio for the configured default user.
Logs are written to logging.output_path only, stdout carries the protocol.`,
		RunE: runMCP,
	}
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd, true)
	if err != nil {
		return err
	}

	cfg.Link.DefaultUserID = userID(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *mcptools.Server
	shutdown, err := startApp(ctx, cfg,
		plaid.Module,
		store.Module,
		linkservice.Module,
		txsync.Module,
		fx.Provide(apispec.Load),
		mcptools.Module,
		fx.Populate(&srv),
	)
	if err != nil {
		return err
	}
	defer shutdown()

	return srv.ServeSTDIO(ctx)
}
