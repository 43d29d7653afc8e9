package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abelbrown/discover/internal/cache"
	"github.com/abelbrown/discover/internal/coord"
	"github.com/abelbrown/discover/internal/selection"
	"github.com/abelbrown/discover/internal/store"
)

type statsOutput struct {
	Memory      cache.Stats           `json:"memory"`
	Persistent  store.KVStats         `json:"persistent"`
	Environment selection.Environment `json:"environment"`
	Profile     selection.Profile     `json:"profile"`
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics and the current load profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				kv, err := a.store.Stats()
				if err != nil {
					return err
				}
				sel := a.orch.Selector()
				out := statsOutput{
					Memory:      a.orch.CacheStats(),
					Persistent:  kv,
					Environment: sel.Environment(),
					Profile:     sel.CurrentProfile(),
				}
				writeOutput(cmd, out, func() { renderStats(cmd, out) })
				return nil
			})
		},
	}
}

func renderStats(cmd *cobra.Command, s statsOutput) {
	printf(cmd, "%s\n", titleStyle.Render("Cache"))
	t := newTable("Tier", "Entries", "Expired", "Size", "Detail")
	t.Row("memory", fmt.Sprint(s.Memory.ItemCount), fmt.Sprint(s.Memory.ExpiredCount),
		fmt.Sprintf("%d KB", s.Memory.ApproxMemoryKB),
		fmt.Sprintf("%d hits / %d misses, %d snapshots", s.Memory.Hits, s.Memory.Misses, s.Memory.Snapshots))
	t.Row("sqlite", fmt.Sprint(s.Persistent.Rows), fmt.Sprint(s.Persistent.Expired),
		fmt.Sprintf("%d KB", (s.Persistent.Bytes+1023)/1024),
		fmt.Sprintf("%d compressed", s.Persistent.Compressed))
	printf(cmd, "%s\n\n", t.Render())

	e, p := s.Environment, s.Profile
	printf(cmd, "%s\n", titleStyle.Render("Profile"))
	printf(cmd, "  network %s (%s), device %s, peak %v\n", e.Network, e.Quality, e.Device, e.Peak)
	printf(cmd, "  %s: %d sources/page, %d concurrent, timeout %s, %d retries, min interval %s\n",
		p.Name, p.SourcesPerPage, p.MaxConcurrent, p.Timeout, p.Retries, p.MinInterval)
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [category]",
		Short: "Clear cached pages, for one category or everything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if len(args) == 0 {
					a.orch.ClearCache()
					writeOutput(cmd, map[string]string{"cleared": "all"}, func() {
						printf(cmd, "%s\n", okStyle.Render("cache cleared"))
					})
					return nil
				}
				cat, err := parseCategoryArg(args)
				if err != nil {
					return err
				}
				a.orch.ClearCacheForCategory(cat)
				writeOutput(cmd, map[string]string{"cleared": cat.String()}, func() {
					printf(cmd, "%s\n", okStyle.Render("cleared "+cat.String()))
				})
				return nil
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evict expired cache entries and persist source health",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	cmd.Flags().Bool("daemon", false, "Keep sweeping on the configured interval until interrupted")
	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	daemon, _ := cmd.Flags().GetBool("daemon")
	return withApp(cmd, func(a *app) error {
		if !daemon {
			res := a.orch.Sweep(a.store)
			writeOutput(cmd, res, func() {
				printf(cmd, "evicted %d memory entries, purged %d rows\n", res.Evicted, res.Purged)
			})
			return nil
		}

		interval := sweepInterval(a.cfg)
		if err := a.orch.Start(interval, a.store); err != nil {
			return err
		}
		printf(cmd, "sweeping every %s, ctrl-c to stop\n", interval)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return a.orch.Stop()
	})
}

var _ coord.Maintenance = (*store.Store)(nil)
