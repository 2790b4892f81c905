package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brizzai/plaid-link/internal/config"
	"github.com/brizzai/plaid-link/internal/link"
	"github.com/brizzai/plaid-link/internal/plaid"
	"github.com/brizzai/plaid-link/internal/tui"
	"github.com/brizzai/plaid-link/internal/widget"
	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a bank account through the backend",
		Long: `Request a link token from the backend, open Plaid Link and hand the public token
back to the backend. With --item-id the item is relinked in update mode.`,
		Args: cobra.NoArgs,
		RunE: runLink,
	}
	cmd.Flags().String("item-id", "", "Relink this item in update mode")
	cmd.Flags().Bool("no-tui", false, "Print progress instead of the interactive page")
	return cmd
}

func runLink(cmd *cobra.Command, _ []string) error {
	interactive := isatty.IsTerminal(os.Stdout.Fd())
	if noTUI, _ := cmd.Flags().GetBool("no-tui"); noTUI {
		interactive = false
	}

	cfg, err := setup(cmd, interactive)
	if err != nil {
		return err
	}
	if itemID, _ := cmd.Flags().GetString("item-id"); itemID != "" {
		cfg.Client.ItemID = itemID
	}

	backend, err := link.NewHTTPBackend(&cfg.Client.Backend)
	if err != nil {
		return err
	}
	widgets, err := newWidgetFactory(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := tui.NewStateFeed()
	flow := link.NewFlow(backend, widgets,
		link.WithTimeout(cfg.Client.Backend.Timeout),
		link.WithTokenRequest(link.TokenRequest{ItemID: cfg.Client.ItemID}),
		link.WithObserver(feed.Observe),
	)

	if interactive {
		res, err := tui.RunLink(ctx, flow, feed, tui.LinkOptions{
			Title:  cfg.Link.ClientName,
			Update: cfg.Client.ItemID != "",
		})
		if err != nil {
			return err
		}
		return reportLink(res)
	}

	spinner, _ := pterm.DefaultSpinner.Start("Requesting link token")
	if err := flow.Start(ctx); err != nil {
		spinner.Fail(linkMessage(err))
		return err
	}
	spinner.UpdateText("Complete the connection in your browser")
	res, err := flow.Wait(ctx)
	if err != nil {
		flow.Cancel()
		spinner.Fail("Cancelled")
		return err
	}
	_ = spinner.Stop()
	return reportLink(&res)
}

// newWidgetFactory builds the configured widget. Only the sandbox widget
// talks to Plaid directly.
func newWidgetFactory(cfg *config.Config) (link.WidgetFactory, error) {
	if cfg.Client.Widget != widget.KindSandbox {
		return widget.NewFactory(cfg, nil)
	}
	if err := cfg.RequirePlaid(); err != nil {
		return nil, err
	}
	client, err := plaid.NewClient(&cfg.Plaid)
	if err != nil {
		return nil, err
	}
	return widget.NewFactory(cfg, client)
}

func reportLink(res *link.Result) error {
	if res == nil {
		pterm.Info.Println("No account was linked.")
		return nil
	}
	switch res.State {
	case link.StateLinked:
		if res.Exchange != nil {
			pterm.Success.Printfln("Linked %s (item %s)", res.Exchange.InstitutionName, res.Exchange.ItemID)
		} else {
			pterm.Success.Println("Account linked")
		}
		return nil
	case link.StateExited:
		if res.Err != nil {
			pterm.Error.Println(linkMessage(res.Err))
			return res.Err
		}
		pterm.Info.Println("Link closed without connecting an account.")
		return nil
	}
	if res.Err != nil {
		pterm.Error.Println(linkMessage(res.Err))
		return res.Err
	}
	return nil
}

func linkMessage(err error) string {
	var lerr *link.Error
	if errors.As(err, &lerr) {
		return lerr.UserMessage()
	}
	if errors.Is(err, link.ErrCancelled) {
		return "Cancelled"
	}
	return fmt.Sprint(err)
}
