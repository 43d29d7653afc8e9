package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abelbrown/discover/internal/coord"
	"github.com/abelbrown/discover/internal/filter"
	"github.com/abelbrown/discover/internal/model"
)

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [category]",
		Short: "Load a discovery page (default category ALL)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLoad,
	}
	cmd.Flags().IntP("page", "p", 1, "Page number")
	cmd.Flags().Bool("snapshot", false, "Show the last saved first page without fetching")
	cmd.Flags().StringSlice("source", nil, "Only show items from these source URLs")
	cmd.Flags().Int("per-source", 0, "Show at most this many items per source")
	return cmd
}

func runLoad(cmd *cobra.Command, args []string) error {
	cat, err := parseCategoryArg(args)
	if err != nil {
		return err
	}
	page, _ := cmd.Flags().GetInt("page")
	snapshot, _ := cmd.Flags().GetBool("snapshot")

	return withApp(cmd, func(a *app) error {
		if snapshot {
			items, ok := a.orch.Snapshot(cat)
			if !ok {
				return fmt.Errorf("no snapshot for %s", cat)
			}
			items = narrow(cmd, items)
			writeOutput(cmd, coord.Page{Items: items, Stale: true}, func() {
				renderItems(cmd, fmt.Sprintf("%s snapshot", cat), items)
			})
			return nil
		}

		res, err := a.orch.LoadPage(cmd.Context(), cat, page)
		if errors.Is(err, coord.ErrThrottled) {
			return fmt.Errorf("loading too fast, try again shortly")
		}
		if err != nil {
			return err
		}
		res.Items = narrow(cmd, res.Items)
		writeOutput(cmd, res, func() { renderPage(cmd, cat.String(), page, res) })
		return nil
	})
}

// narrow applies the display-only --source and --per-source flags.
func narrow(cmd *cobra.Command, items []model.DiscoveryItem) []model.DiscoveryItem {
	if urls, _ := cmd.Flags().GetStringSlice("source"); len(urls) > 0 {
		items = filter.BySource(items, urls)
	}
	n, _ := cmd.Flags().GetInt("per-source")
	return filter.LimitPerSource(items, n)
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [category]",
		Short: "Drop cached pages for a category and reload page 1",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := parseCategoryArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				res, err := a.orch.Refresh(cmd.Context(), cat)
				if err != nil {
					return err
				}
				writeOutput(cmd, res, func() { renderPage(cmd, cat.String(), 1, res) })
				return nil
			})
		},
	}
}

func renderPage(cmd *cobra.Command, cat string, page int, res coord.Page) {
	title := fmt.Sprintf("%s page %d", cat, page)
	switch {
	case res.Stale:
		title += warnStyle.Render(" (offline snapshot)")
	case res.Cached:
		title += dimStyle.Render(" (cached)")
	}
	renderItems(cmd, title, res.Items)
	if res.HasMore {
		printf(cmd, "%s\n", dimStyle.Render(fmt.Sprintf("more: discover load %s --page %d", cat, page+1)))
	}
}
