package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/abelbrown/discover/internal/cache"
	"github.com/abelbrown/discover/internal/classify"
	"github.com/abelbrown/discover/internal/config"
	"github.com/abelbrown/discover/internal/coord"
	"github.com/abelbrown/discover/internal/dedup"
	"github.com/abelbrown/discover/internal/fetch"
	"github.com/abelbrown/discover/internal/filter"
	"github.com/abelbrown/discover/internal/logging"
	"github.com/abelbrown/discover/internal/model"
	"github.com/abelbrown/discover/internal/otel"
	"github.com/abelbrown/discover/internal/sampling"
	"github.com/abelbrown/discover/internal/selection"
	"github.com/abelbrown/discover/internal/store"
)

const dbName = "discover.db"

// app is one fully wired process: config, persistence, event log and
// orchestrator. Close persists source health and releases everything.
type app struct {
	cfg    *config.Config
	store  *store.Store
	events *otel.Logger
	orch   *coord.Orchestrator
}

func openApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logging.SetOutput(os.Stderr, cfg.LogLevel)
	} else if err := logging.Init(filepath.Join(cfg.DataDir, "logs"), cfg.LogLevel); err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, dbName))
	if err != nil {
		logging.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	events, err := otel.OpenFile(cfg.DataDir)
	if err != nil {
		logging.Warn("event log unavailable, events discarded", "error", err)
		events = otel.NewNullLogger()
	}

	a := &app{cfg: cfg, store: st, events: events}
	if a.orch, err = a.build(); err != nil {
		a.Close()
		return nil, err
	}
	events.Info(otel.KindStartup, "cmd", cmd.CommandPath())
	return a, nil
}

func (a *app) build() (*coord.Orchestrator, error) {
	cfg := a.cfg

	sources := cfg.SourceDescriptors()
	if len(sources) == 0 {
		sources = fetch.DefaultSources()
	}
	if err := a.store.LoadSourceStates(sources); err != nil {
		logging.Warn("could not restore source health", "error", err)
	}

	sel := selection.New(selection.Config{
		Network:   selection.ParseNetwork(cfg.Selection.Network),
		Quality:   selection.ParseQuality(cfg.Selection.Quality),
		MemoryMB:  cfg.Selection.MemoryMB,
		PeakStart: cfg.Selection.PeakStart,
		PeakEnd:   cfg.Selection.PeakEnd,
		Backoff: selection.BackoffTiers{
			Short:  cfg.Selection.BackoffShort.Std(),
			Medium: cfg.Selection.BackoffMedium.Std(),
			Long:   cfg.Selection.BackoffLong.Std(),
		},
	}, sources, nil)

	events := a.events
	results := cache.New(cache.Options{
		Capacity: cfg.Cache.Capacity,
		Policy: cache.TTLPolicy{
			Default:     cfg.Cache.DefaultTTL.Std(),
			PerCategory: cfg.CategoryTTLs(),
		},
		KV: a.store,
		OnEvict: func(key string, reason cache.EvictReason) {
			events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindCacheEvict, Comp: "cache", Key: key, Msg: string(reason)})
		},
	})

	hostRate := rate.Inf
	if d := cfg.Fetch.HostInterval.Std(); d > 0 {
		hostRate = rate.Every(d)
	}
	client := fetch.NewFetcher(fetch.Options{
		Timeout:   cfg.Fetch.Timeout.Std(),
		UserAgent: cfg.Fetch.UserAgent,
		HostRate:  hostRate,
	})

	sampler, err := sampling.New(cfg.Interleave)
	if err != nil {
		return nil, err
	}

	return coord.New(coord.Options{
		Client:     client,
		Selector:   sel,
		Cache:      results,
		Classifier: classify.New(cfg.Classifier, coord.ConflictHandler(events)),
		Restricted: filter.DefaultRestricted(cfg.Restricted.Allow, cfg.Restricted.Threshold),
		Dedup:      dedup.New(cfg.Dedup.Threshold),
		Sampler:    sampler,
		Bookshelf:  a.store,
		Events:     events,
		Sort:       cfg.Sort,
	})
}

// Close saves source health and shuts down in reverse wiring order.
func (a *app) Close() {
	if a.orch != nil {
		if err := a.store.SaveSourceStates(a.orch.Selector().Sources()); err != nil {
			logging.Warn("could not persist source health", "error", err)
		}
	}
	a.events.Info(otel.KindShutdown, "cmd", "exit")
	a.events.Close()
	if err := a.store.Close(); err != nil {
		logging.Warn("store close failed", "error", err)
	}
	logging.Close()
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(*app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseCategoryArg(args []string) (model.Category, error) {
	if len(args) == 0 {
		return model.All, nil
	}
	return model.ParseCategory(args[0])
}

func sweepInterval(cfg *config.Config) time.Duration {
	if d := cfg.Cache.SweepInterval.Std(); d > 0 {
		return d
	}
	return 5 * time.Minute
}
