package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/discover/internal/model"
	"github.com/abelbrown/discover/internal/selection"
)

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Show registered sources and their health",
		Args:  cobra.NoArgs,
		RunE:  runSourcesList,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear failure counts and backoff for every source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				a.orch.Selector().ResetBackoff()
				writeOutput(cmd, map[string]bool{"reset": true}, func() {
					printf(cmd, "%s\n", okStyle.Render("backoff cleared"))
				})
				return nil
			})
		},
	})
	return cmd
}

type sourceHealth struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Type        string    `json:"type"`
	Enabled     bool      `json:"enabled"`
	Priority    float64   `json:"priority"`
	AvgResponse string    `json:"avg_response,omitempty"`
	Failures    int       `json:"failures"`
	Backoff     time.Time `json:"backoff_until,omitempty"`
	LastUpdate  time.Time `json:"last_update,omitempty"`
	Items       int       `json:"items"`
	LastError   string    `json:"last_error,omitempty"`
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		now := time.Now()
		var out []sourceHealth
		for _, src := range a.orch.Selector().Sources() {
			out = append(out, healthOf(&src, now))
		}
		writeOutput(cmd, out, func() { renderSources(cmd, out, now) })
		return nil
	})
}

func healthOf(src *model.SourceDescriptor, now time.Time) sourceHealth {
	h := sourceHealth{
		Name:       src.Name,
		URL:        src.URL,
		Type:       string(src.Type),
		Enabled:    src.Enabled,
		Priority:   selection.Priority(src, now),
		Failures:   src.Failures,
		LastUpdate: src.LastUpdate,
		Items:      src.ItemCount,
		LastError:  src.LastError,
	}
	if src.AvgResponse > 0 {
		h.AvgResponse = src.AvgResponse.Round(time.Millisecond).String()
	}
	if src.InBackoff(now) {
		h.Backoff = src.BackoffUntil
	}
	return h
}

func renderSources(cmd *cobra.Command, list []sourceHealth, now time.Time) {
	printf(cmd, "%s\n", titleStyle.Render(fmt.Sprintf("%d sources", len(list))))
	t := newTable("Name", "Type", "Status", "Priority", "Avg", "Items", "Updated")
	for _, h := range list {
		status := okStyle.Render("ok")
		switch {
		case !h.Enabled:
			status = dimStyle.Render("disabled")
		case !h.Backoff.IsZero():
			status = errStyle.Render(fmt.Sprintf("backoff %s (%d)", h.Backoff.Sub(now).Round(time.Second), h.Failures))
		case h.Failures > 0:
			status = warnStyle.Render(fmt.Sprintf("%d failures", h.Failures))
		}
		t.Row(clip(h.Name, 28), h.Type, status, fmt.Sprintf("%.2f", h.Priority), h.AvgResponse,
			fmt.Sprint(h.Items), ago(h.LastUpdate, now))
	}
	printf(cmd, "%s\n", t.Render())
	for _, h := range list {
		if h.LastError != "" {
			printf(cmd, "%s %s\n", warnStyle.Render(h.Name+":"), dimStyle.Render(h.LastError))
		}
	}
}
