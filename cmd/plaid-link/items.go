package main

import (
	"encoding/json"
	"os"

	"github.com/brizzai/plaid-link/internal/linkservice"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/store"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage linked items",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the linked items of the user",
		Args:  cobra.NoArgs,
		RunE:  runItemsList,
	}
	list.Flags().Bool("json", false, "Print the items as JSON")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an item at Plaid and forget it",
		Args:  cobra.ExactArgs(1),
		RunE:  runItemsRemove,
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func runItemsList(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd, false)
	if err != nil {
		return err
	}

	var items *store.Store
	shutdown, err := startApp(cmd.Context(), cfg, store.Module, fx.Populate(&items))
	if err != nil {
		return err
	}
	defer shutdown()

	list, err := items.ListItems(cmd.Context(), userID(cmd, cfg))
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		pterm.Info.Println("No linked items. Run `plaid-link link` to add one.")
		return nil
	}
	data := pterm.TableData{{"ID", "Plaid item", "Institution", "Status", "Linked"}}
	for _, item := range list {
		data = append(data, []string{
			item.ID,
			item.PlaidItemID,
			item.InstitutionName,
			item.Status,
			item.CreatedAt.Format("2006-01-02"),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runItemsRemove(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd, false)
	if err != nil {
		return err
	}

	var svc *linkservice.Service
	shutdown, err := startApp(cmd.Context(), cfg,
		plaid.Module,
		store.Module,
		linkservice.Module,
		fx.Populate(&svc),
	)
	if err != nil {
		return err
	}
	defer shutdown()

	if err := svc.RemoveItem(cmd.Context(), userID(cmd, cfg), args[0]); err != nil {
		return err
	}
	pterm.Success.Printfln("Removed item %s", args[0])
	return nil
}
