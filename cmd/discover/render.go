package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/abelbrown/discover/internal/model"
	"github.com/abelbrown/discover/internal/otel"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	shelfMark   = okStyle.Render("●")
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func renderItems(cmd *cobra.Command, title string, items []model.DiscoveryItem) {
	printf(cmd, "%s\n", titleStyle.Render(title))
	if len(items) == 0 {
		printf(cmd, "%s\n", dimStyle.Render("  no items"))
		return
	}
	t := newTable("", "Name", "Author", "Category", "Source", "Quality")
	for _, it := range items {
		mark := ""
		if it.InBookshelf {
			mark = shelfMark
		}
		src := it.SourceName()
		if n := len(it.AltSources); n > 0 {
			src = fmt.Sprintf("%s +%d", src, n)
		}
		t.Row(mark, clip(it.Name, 40), clip(it.Author, 20), string(it.Category), clip(src, 24), fmt.Sprintf("%.2f", it.Quality))
	}
	printf(cmd, "%s\n", t.Render())
}

func levelStyle(l otel.Level) lipgloss.Style {
	switch l {
	case otel.LevelError:
		return errStyle
	case otel.LevelWarn:
		return warnStyle
	case otel.LevelDebug:
		return dimStyle
	}
	return cellStyle
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return now.Sub(t).Round(time.Second).String() + " ago"
}
