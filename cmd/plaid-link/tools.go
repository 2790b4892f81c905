package main

import (
	"fmt"

	"github.com/brizzai/plaid-link/internal/apispec"
	"github.com/brizzai/plaid-link/internal/mcptools"
	"github.com/brizzai/plaid-link/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Choose and describe the MCP tools",
		Long: `Open an editor over the MCP tools. Tools can be disabled and their descriptions
rewritten; the result is exported as an adjustments file for mcp.adjustments_file.`,
		Args: cobra.NoArgs,
		RunE: runTools,
	}
}

func runTools(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd, true)
	if err != nil {
		return err
	}

	spec, err := apispec.Load()
	if err != nil {
		return err
	}
	tools := mcptools.Catalog(spec)

	adjuster := apispec.NewAdjuster()
	if err := adjuster.Load(cfg.MCP.AdjustmentsFile); err != nil {
		return fmt.Errorf("error loading adjustments file: %w", err)
	}

	exportPath := cfg.MCP.AdjustmentsFile
	if exportPath == "" {
		exportPath = "adjustments.yaml"
	}

	p := tea.NewProgram(tui.NewAppModel(tools, adjuster, exportPath), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	m, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running program: %w", err)
	}

	// Only display summary if the editor completed the export
	finalModel := m.(tui.AppModel)
	if finalModel.IsFinished() {
		kept := 0
		for _, tool := range finalModel.GetToolUpdates() {
			if !tool.IsRemoved {
				kept++
			}
		}
		pterm.Info.Printfln("Processing complete. Kept %s tools out of %s.",
			pterm.LightGreen(kept),
			pterm.White(len(tools)))
	}
	return nil
}
