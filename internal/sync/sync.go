package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/gitsource"
	"github.com/conorfennell/knolstudy/internal/knol"
	"github.com/conorfennell/knolstudy/internal/parser"
	"github.com/conorfennell/knolstudy/internal/storage"
)

const defaultTitle = "General"

// Result summarises the reconciliation of one deck.
type Result struct {
	DeckID   string
	Parsed   int
	Inserted int
	Moved    int
	Deleted  int
	Errors   []error
}

// RunSync iterates over all decks and reconciles them with their sources.
// A deck that fails to sync is logged and skipped.
func RunSync(ctx context.Context, db *storage.DB, reposDir string) ([]Result, error) {
	slog.Info("Starting sync process for all decks...")
	decks, err := db.GetAllDecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get decks: %w", err)
	}

	if len(decks) == 0 {
		slog.Info("No decks configured. Add one with: knolstudy source add <path/or/url.git> --deck <id>")
		return nil, nil
	}

	var results []Result
	for _, deck := range decks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := SyncDeck(ctx, db, deck, reposDir)
		if err != nil {
			slog.Error("Error syncing deck", "deck_id", deck.ID, "path", deck.Path, "error", err)
			continue
		}
		results = append(results, res)
	}
	slog.Info("Sync process complete.", "decks", len(results))
	return results, nil
}

// SyncDeck brings one deck's cards in line with its source. Git sources are
// cloned or pulled into reposDir first.
func SyncDeck(ctx context.Context, db *storage.DB, deck domain.Deck, reposDir string) (Result, error) {
	slog.Info("Syncing deck", "deck_id", deck.ID, "type", deck.Type, "path", deck.Path)

	root := deck.Path
	if deck.Type == "git" {
		localRepoPath, err := gitsource.LocalPath(reposDir, deck.Path)
		if err != nil {
			return Result{}, fmt.Errorf("error determining local path for git repo: %w", err)
		}
		if err := gitsource.Sync(ctx, deck.Path, localRepoPath); err != nil {
			return Result{}, fmt.Errorf("error syncing git repo: %w", err)
		}
		root = localRepoPath
	}

	return reconcile(ctx, db, deck.ID, root)
}

// placed is a parsed note with its id and position in the deck.
type placed struct {
	id    string
	note  domain.Note
	place domain.Placement
}

func reconcile(ctx context.Context, db *storage.DB, deckID, root string) (Result, error) {
	res := Result{DeckID: deckID}

	notes, parseErrors, err := collectNotes(root)
	if err != nil {
		return res, fmt.Errorf("error walking directory %s: %w", root, err)
	}
	res.Errors = append(res.Errors, parseErrors...)

	parsed := placeNotes(deckID, notes)
	res.Parsed = len(parsed)

	dbCards, err := db.GetCardsByDeckID(ctx, deckID)
	if err != nil {
		return res, fmt.Errorf("error getting cards for deck %s: %w", deckID, err)
	}
	existing := make(map[string]domain.Card, len(dbCards))
	for _, c := range dbCards {
		existing[c.ID] = c
	}

	found := make(map[string]bool, len(parsed))
	for _, p := range parsed {
		if found[p.id] {
			slog.Warn("Duplicate card in deck, keeping the first", "deck_id", deckID, "question", p.note.Question)
			continue
		}
		found[p.id] = true

		current, ok := existing[p.id]
		if !ok {
			slog.Debug("New card found, inserting...", "card_id", p.id)
			card := domain.Card{
				ID:        p.id,
				DeckID:    deckID,
				Placement: p.place,
				Front:     p.note.Question,
				Back:      p.note.Answer,
				Context:   p.note.Context,
			}
			if err := db.InsertCard(ctx, card); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("db insert for %s: %w", p.id, err))
				continue
			}
			res.Inserted++
			continue
		}
		if current.Placement != p.place {
			if err := db.UpdateCardPlacement(ctx, p.id, p.place); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("db move for %s: %w", p.id, err))
				continue
			}
			res.Moved++
		}
	}

	for _, dbCard := range dbCards {
		if found[dbCard.ID] {
			continue
		}
		slog.Debug("Orphaned card, deleting", "card_id", dbCard.ID)
		if err := db.DeleteCard(ctx, dbCard.ID); err != nil {
			slog.Warn("Failed to delete orphaned card", "card_id", dbCard.ID, "error", err)
			continue
		}
		res.Deleted++
	}

	if err := db.UpdateDeckLastScanned(ctx, deckID, time.Now()); err != nil {
		slog.Warn("Failed to update last scanned for deck", "deck_id", deckID, "error", err)
	}

	slog.Info("reconciliation complete",
		"deck_id", deckID,
		"path", root,
		"parsed_cards", res.Parsed,
		"inserted", res.Inserted,
		"moved", res.Moved,
		"orphaned_deleted", res.Deleted,
		"errors", len(res.Errors),
	)
	return res, nil
}

// collectNotes parses every markdown file under root in lexical order. Notes
// outside any part heading are filed under a part named after their file.
func collectNotes(root string) ([]domain.Note, []error, error) {
	var notes []domain.Note
	var parseErrors []error

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileNotes, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		stem := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		for _, n := range fileNotes {
			if n.Part == "" {
				n.Part = stem
			}
			notes = append(notes, n)
		}
		return nil
	})
	return notes, parseErrors, walkErr
}

// placeNotes assigns ids and hierarchical ordinals in order of first appearance.
func placeNotes(deckID string, notes []domain.Note) []placed {
	partOrder := map[string]int{}
	chapterOrder := map[string]int{}
	topicOrder := map[string]int{}
	positions := map[string]int{}
	chaptersIn := map[string]int{}
	topicsIn := map[string]int{}

	out := make([]placed, 0, len(notes))
	for _, n := range notes {
		if strings.TrimSpace(n.Chapter) == "" {
			n.Chapter = defaultTitle
		}
		if strings.TrimSpace(n.Topic) == "" {
			n.Topic = defaultTitle
		}

		partID := knol.NodeID(deckID, n.Part)
		chapterID := knol.NodeID(deckID, n.Part, n.Chapter)
		topicID := knol.NodeID(deckID, n.Part, n.Chapter, n.Topic)

		if _, ok := partOrder[partID]; !ok {
			partOrder[partID] = len(partOrder)
		}
		if _, ok := chapterOrder[chapterID]; !ok {
			chapterOrder[chapterID] = chaptersIn[partID]
			chaptersIn[partID]++
		}
		if _, ok := topicOrder[topicID]; !ok {
			topicOrder[topicID] = topicsIn[chapterID]
			topicsIn[chapterID]++
		}
		pos := positions[topicID]
		positions[topicID]++

		out = append(out, placed{
			id:   knol.CardID(deckID, n),
			note: n,
			place: domain.Placement{
				PartID:       partID,
				ChapterID:    chapterID,
				TopicID:      topicID,
				PartOrder:    partOrder[partID],
				ChapterOrder: chapterOrder[chapterID],
				TopicOrder:   topicOrder[topicID],
				Position:     pos,
			},
		})
	}
	return out
}
