package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conorfennell/knolstudy/internal/due"
	"github.com/conorfennell/knolstudy/internal/sm2"
)

// newDueCmd creates the "knolstudy due" subcommand.
func newDueCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "due <deck-id>",
		Short: "Show the review queue a session started now would get",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			now := time.Now()
			ids, err := due.NewSelector(db).Select(cmd.Context(), args[0], now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s cards due in %s\n", humanize.Comma(int64(len(ids))), args[0])
			if limit > 0 && len(ids) > limit {
				ids = ids[:limit]
			}
			for i, id := range ids {
				card, err := db.FindCard(cmd.Context(), id)
				if err != nil {
					return err
				}
				if card == nil {
					continue
				}
				when := "new"
				if card.DueAt != nil {
					when = "due " + humanize.RelTime(*card.DueAt, now, "ago", "from now")
				}
				front, _, _ := strings.Cut(card.Front, "\n")
				fmt.Fprintf(out, "%3d. %s (%s)\n", i+1, front, when)
			}

			var grades []string
			for _, q := range []sm2.Quality{sm2.Again, sm2.Hard, sm2.Good, sm2.Easy} {
				grades = append(grades, fmt.Sprintf("%s=%d", q, int(q)))
			}
			fmt.Fprintf(out, "Grades: %s\n", strings.Join(grades, " "))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of cards to list (0 for all)")
	return cmd
}
