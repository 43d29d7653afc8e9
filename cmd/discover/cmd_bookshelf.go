package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/discover/internal/store"
)

func bookshelfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bookshelf",
		Aliases: []string{"shelf"},
		Short:   "Manage saved works; saved works are marked in load results",
		Args:    cobra.NoArgs,
		RunE:    runShelfList,
	}
	cmd.AddCommand(shelfAddCmd())
	cmd.AddCommand(shelfRmCmd())
	return cmd
}

func shelfAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> [author]",
		Short: "Save a work",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, author := shelfArgs(args)
			return withApp(cmd, func(a *app) error {
				if err := a.store.AddToBookshelf(name, author); err != nil {
					return err
				}
				writeOutput(cmd, map[string]string{"added": name, "author": author}, func() {
					printf(cmd, "%s %s\n", shelfMark, name)
				})
				return nil
			})
		},
	}
}

func shelfRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name> [author]",
		Aliases: []string{"remove"},
		Short:   "Remove a saved work",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, author := shelfArgs(args)
			return withApp(cmd, func(a *app) error {
				err := a.store.RemoveFromBookshelf(name, author)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%q is not on the bookshelf", name)
				}
				if err != nil {
					return err
				}
				writeOutput(cmd, map[string]string{"removed": name, "author": author}, func() {
					printf(cmd, "removed %s\n", name)
				})
				return nil
			})
		},
	}
}

func runShelfList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		entries, err := a.store.Bookshelf()
		if err != nil {
			return err
		}
		writeOutput(cmd, entries, func() {
			if len(entries) == 0 {
				printf(cmd, "%s\n", dimStyle.Render("bookshelf is empty"))
				return
			}
			now := time.Now()
			t := newTable("Name", "Author", "Added")
			for _, e := range entries {
				t.Row(clip(e.Name, 40), clip(e.Author, 24), ago(e.AddedAt, now))
			}
			printf(cmd, "%s\n", t.Render())
		})
		return nil
	})
}

func shelfArgs(args []string) (name, author string) {
	name = args[0]
	if len(args) > 1 {
		author = args[1]
	}
	return name, author
}
