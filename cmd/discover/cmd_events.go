package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abelbrown/discover/internal/config"
	"github.com/abelbrown/discover/internal/otel"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent pipeline events",
		Args:  cobra.NoArgs,
		RunE:  runEvents,
	}
	cmd.Flags().IntP("tail", "n", 30, "Number of events to show (0 for all)")
	cmd.Flags().String("kind", "", "Only kinds with this prefix (e.g. fetch, cache.evict)")
	cmd.Flags().String("level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().String("load", "", "Only events of one load id")
	return cmd
}

var levelRank = map[otel.Level]int{
	otel.LevelDebug: 0,
	otel.LevelInfo:  1,
	otel.LevelWarn:  2,
	otel.LevelError: 3,
}

func runEvents(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	tail, _ := cmd.Flags().GetInt("tail")
	kind, _ := cmd.Flags().GetString("kind")
	level, _ := cmd.Flags().GetString("level")
	loadID, _ := cmd.Flags().GetString("load")

	minRank := 0
	if level != "" {
		r, ok := levelRank[otel.Level(strings.ToLower(level))]
		if !ok {
			return fmt.Errorf("unknown level %q", level)
		}
		minRank = r
	}

	f, err := os.Open(filepath.Join(cfg.DataDir, otel.FileName))
	if errors.Is(err, fs.ErrNotExist) {
		writeOutput(cmd, []otel.Event{}, func() { printf(cmd, "%s\n", dimStyle.Render("no events recorded yet")) })
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	all, err := otel.ReadTail(f, 0)
	if err != nil {
		return err
	}

	rb := otel.NewRingBuffer(max(len(all), 1))
	for _, ev := range all {
		rb.Push(ev)
	}
	events := rb.Filter(func(ev otel.Event) bool {
		if kind != "" && !strings.HasPrefix(string(ev.Kind), kind) {
			return false
		}
		if loadID != "" && ev.LoadID != loadID {
			return false
		}
		return levelRank[ev.Level] >= minRank
	})
	if tail > 0 && len(events) > tail {
		events = events[len(events)-tail:]
	}

	writeOutput(cmd, events, func() { renderEvents(cmd, events) })
	return nil
}

func renderEvents(cmd *cobra.Command, events []otel.Event) {
	for _, ev := range events {
		line := fmt.Sprintf("%s %-5s %-18s", ev.Time.Format("15:04:05.000"), ev.Level, ev.Kind)
		var parts []string
		if ev.Category != "" {
			parts = append(parts, fmt.Sprintf("%s/%d", ev.Category, ev.Page))
		}
		if ev.Source != "" {
			parts = append(parts, "src="+ev.Source)
		}
		if ev.Count > 0 {
			parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
		}
		if ev.DurMs > 0 {
			parts = append(parts, fmt.Sprintf("%.0fms", ev.DurMs))
		}
		if ev.Msg != "" {
			parts = append(parts, ev.Msg)
		}
		if ev.Err != "" {
			parts = append(parts, errStyle.Render(ev.Err))
		}
		printf(cmd, "%s %s\n", levelStyle(ev.Level).Render(line), strings.Join(parts, " "))
	}
}
