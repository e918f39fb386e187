package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conorfennell/knolstudy/internal/sync"
)

// newSyncCmd creates the "knolstudy sync" subcommand.
func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Import every deck source into the card store",
		Long:  "Pull git sources, parse their markdown and reconcile cards. Review history of unchanged cards is kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := sync.RunSync(cmd.Context(), db, a.cfg.Sources.ReposDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "%s: %s cards, %s new, %s moved, %s removed\n",
					r.DeckID,
					humanize.Comma(int64(r.Parsed)),
					humanize.Comma(int64(r.Inserted)),
					humanize.Comma(int64(r.Moved)),
					humanize.Comma(int64(r.Deleted)),
				)
				for _, e := range r.Errors {
					fmt.Fprintf(out, "  - %s\n", e)
				}
			}
			return nil
		},
	}
}
