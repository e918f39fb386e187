package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/gitsource"
)

// newSourceCmd creates the "knolstudy source" command group.
func newSourceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage deck sources",
	}
	cmd.AddCommand(newSourceAddCmd(a), newSourceListCmd(a), newSourceRemoveCmd(a))
	return cmd
}

// deckIDFor derives a deck id from a source path: the last path element
// without a .git suffix.
func deckIDFor(path string) string {
	base := filepath.Base(strings.TrimRight(path, "/"))
	if i := strings.LastIndex(base, ":"); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".git")
}

func newSourceAddCmd(a *app) *cobra.Command {
	var deckID, name string
	cmd := &cobra.Command{
		Use:   "add <path/or/url.git>",
		Short: "Register a local directory or git repository as a deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			deck := domain.Deck{ID: deckID, Name: name, Path: path, Type: "local"}
			if gitsource.IsGitURL(path) {
				deck.Type = "git"
			} else if abs, err := filepath.Abs(path); err == nil {
				deck.Path = abs
			}
			if deck.ID == "" {
				deck.ID = deckIDFor(path)
			}
			if deck.Name == "" {
				deck.Name = deck.ID
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			existing, err := db.FindDeck(cmd.Context(), deck.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("deck %s already exists (%s)", deck.ID, existing.Path)
			}
			if err := db.InsertDeck(cmd.Context(), deck); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s deck %s: %s\n", deck.Type, deck.ID, deck.Path)
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'knolstudy sync' to import its cards.")
			return nil
		},
	}
	cmd.Flags().StringVar(&deckID, "deck", "", "Deck id (defaults to the last path element)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the deck id)")
	return cmd
}

func newSourceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deck sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			decks, err := db.GetAllDecks(cmd.Context())
			if err != nil {
				return err
			}
			if len(decks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No decks configured.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tLAST SYNC\tPATH")
			for _, d := range decks {
				scanned := "never"
				if d.LastScanned != nil {
					scanned = humanize.Time(*d.LastScanned)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Type, scanned, d.Path)
			}
			return tw.Flush()
		},
	}
}

func newSourceRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <deck-id>",
		Short: "Remove a deck and all of its cards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.DeleteDeck(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed deck %s\n", args[0])
			return nil
		},
	}
}
