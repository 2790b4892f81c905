package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/logger"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func main() {
	Execute()
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "plaid-link",
	Short: "Link bank accounts through Plaid Link",
	Long: `plaid-link runs the Plaid Link handshake end to end.
It serves the link token and exchange API, drives the link flow from the terminal,
exposes the same operations as MCP tools and imports transactions for linked items.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	// Place version check in PreRun to ensure flags are parsed first
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	}

	defer func() {
		if r := recover(); r != nil {
			pterm.Error.Printf("\nCaught panic: %v\n", r)
			pterm.Error.Printf("%s\n", debug.Stack())
			os.Exit(2)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")
	rootCmd.PersistentFlags().String("user", "", "User that owns the items (defaults to link.default_user_id)")

	rootCmd.AddCommand(
		newServeCmd(),
		newLinkCmd(),
		newMCPCmd(),
		newSyncCmd(),
		newItemsCmd(),
		newConfigCmd(),
		newToolsCmd(),
	)
}

// setup loads the configuration and starts the global logger. Commands that
// own the terminal or stdout pass quiet, so logs only go to
// logging.output_path when one is set.
func setup(cmd *cobra.Command, quiet bool) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if quiet {
		if cfg.Logging.OutputPath == "" {
			return cfg, nil
		}
		cfg.Logging.DisableConsole = true
	}
	if err := logger.InitLogger(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// userID is the --user flag or the configured default user.
func userID(cmd *cobra.Command, cfg *config.Config) string {
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		return user
	}
	return cfg.Link.DefaultUserID
}

// startApp builds an fx application from modules and starts it. The caller
// stops it with the returned function.
func startApp(ctx context.Context, cfg *config.Config, opts ...fx.Option) (func(), error) {
	opts = append([]fx.Option{
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.GetLogger()}
		}),
	}, opts...)

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := app.Stop(context.Background()); err != nil {
			pterm.Warning.Printfln("Shutdown: %v", err)
		}
	}, nil
}
