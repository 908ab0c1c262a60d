package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alexeyco/simpletable"
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/rest/client/cache"
	"github.com/adamwoolhether/rest/client/progress"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manages the download cache",
		Long: `List cached downloads:
	cache ls

Remove the cached copy of a URL:
	cache rm <URL>

Remove everything:
	cache clear`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls",
			Short: "Lists the cached files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				entries, err := a.store.Entries()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cacheTable(a.store.Root(), entries))
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <URL>...",
			Short: "Removes the cached copies of URLs",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, u := range args {
					removed, err := a.store.Delete(a.cfg.Resolve(u))
					if err != nil {
						return err
					}
					if !removed {
						fmt.Fprintf(cmd.OutOrStdout(), "%s is not cached.\n", u)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s removed.\n", u)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Removes every cached file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.store.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
				return nil
			},
		},
	)

	return cmd
}

func cacheTable(root string, entries []cache.Entry) string {
	slices.SortFunc(entries, func(x, y cache.Entry) int { return strings.Compare(x.Key, y.Key) })

	table := simpletable.New()

	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignLeft, Text: "Key"},
			{Align: simpletable.AlignRight, Text: "Size"},
			{Align: simpletable.AlignLeft, Text: "Modified"},
		},
	}

	var total int64
	for _, e := range entries {
		total += e.Size
		table.Body.Cells = append(table.Body.Cells, []*simpletable.Cell{
			{Align: simpletable.AlignLeft, Text: e.Key},
			{Align: simpletable.AlignRight, Text: formatSize(e.Size)},
			{Align: simpletable.AlignLeft, Text: e.ModTime.Format(time.DateTime)},
		})
	}

	table.Footer = &simpletable.Footer{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignRight, Span: 3, Text: fmt.Sprintf("%d files, %s in %s", len(entries), formatSize(total), root)},
		},
	}

	table.SetStyle(simpletable.StyleCompactLite)
	return table.String()
}

func formatSize(n int64) string {
	v, unit := progress.SpeedUnit(float64(n))
	return fmt.Sprintf("%.0f %s", v, unit)
}
