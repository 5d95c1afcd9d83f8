package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wudi/hitcounter/internal/counter"
)

func (a *app) hitsCmd() *cobra.Command {
	var (
		limit  int
		match  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "hits [path]",
		Short: "Show hit counts, highest first, or the count for one path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.setup(cmd)
			if err != nil {
				return err
			}

			store, err := counter.New(cmd.Context(), cfg.Store, cfg.AWS)
			if err != nil {
				return err
			}
			defer store.Close()

			var records []counter.Record
			if len(args) == 1 {
				hits, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				records = []counter.Record{{Path: args[0], Hits: hits}}
			} else {
				records, err = counter.ListMatching(cmd.Context(), store, match, limit)
				if err != nil {
					return fmt.Errorf("failed to list hits: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tHITS")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%d\n", r.Path, r.Hits)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of rows (0 for all)")
	cmd.Flags().StringVarP(&match, "match", "m", "", `only paths matching this glob, e.g. "/api/**"`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
