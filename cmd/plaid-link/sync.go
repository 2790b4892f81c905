package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/store"
	"github.com/brizzai/plaid-link/internal/txsync"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch transactions, liabilities and recurring streams for linked items",
		RunE:  runSync,
	}
	cmd.Flags().String("item", "", "Only sync this item (local or Plaid item id)")
	cmd.Flags().Int("days", 0, "Look-back window in days (overrides sync.days)")
	cmd.Flags().String("out", "", "Also write the fetched transactions as JSON to this file")
	cmd.Flags().Bool("all-users", false, "Sync the items of every user")
	cmd.Flags().StringSlice("product", nil, "Products to sync: "+strings.Join(txsync.Products, ", ")+" (overrides sync.products)")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd, false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var syncer *txsync.Syncer
	shutdown, err := startApp(ctx, cfg,
		plaid.Module,
		store.Module,
		txsync.Module,
		fx.Populate(&syncer),
	)
	if err != nil {
		return err
	}
	defer shutdown()

	opts := txsync.Options{}
	opts.ItemID, _ = cmd.Flags().GetString("item")
	opts.Days, _ = cmd.Flags().GetInt("days")
	opts.Products, _ = cmd.Flags().GetStringSlice("product")
	if all, _ := cmd.Flags().GetBool("all-users"); !all {
		opts.UserID = userID(cmd, cfg)
	}

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				pterm.Warning.Printfln("Failed to close %s: %v", out, err)
			}
		}()
		opts.Out = f
	}

	spinner, _ := pterm.DefaultSpinner.Start("Fetching Plaid data")
	report, err := syncer.Sync(ctx, opts)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Synced %s from %s to %s", strings.Join(report.Products, ", "), report.StartDate, report.EndDate))

	printReport(os.Stdout, report)
	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d items failed to sync", failed, len(report.Items))
	}
	return nil
}

func printReport(w io.Writer, report *txsync.Report) {
	data := pterm.TableData{{"Item", "Institution", "Fetched", "Inserted", "Replaced", "Cards", "Streams", "Skipped", "Error"}}
	for _, item := range report.Items {
		inserted, replaced := "-", "-"
		if item.Import != nil {
			inserted = fmt.Sprint(item.Import.Inserted)
			replaced = fmt.Sprint(item.Import.Replaced)
		}
		data = append(data, []string{
			item.ItemID,
			item.InstitutionName,
			fmt.Sprint(item.Fetched),
			inserted,
			replaced,
			importCount(item.Liabilities),
			importCount(item.Recurring),
			strings.Join(item.Skipped, ","),
			item.Error,
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(w).Render()
}

func importCount(result *store.ImportResult) string {
	if result == nil {
		return "-"
	}
	return fmt.Sprint(result.Inserted + result.Replaced)
}
