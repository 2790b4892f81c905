package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/brizzai/plaid-link/internal/auth"
	"github.com/brizzai/plaid-link/internal/linkservice"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/server"
	"github.com/brizzai/plaid-link/internal/store"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the link backend API and the web link page",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd, false)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *server.Server
	shutdown, err := startApp(ctx, cfg,
		plaid.Module,
		store.Module,
		linkservice.Module,
		auth.Module,
		server.Module,
		fx.Populate(&srv),
	)
	if err != nil {
		return err
	}
	defer shutdown()

	pterm.Info.Printfln("Serving on http://%s (Plaid %s)", srv.Addr(), cfg.Plaid.Environment)
	return srv.Start(ctx)
}
