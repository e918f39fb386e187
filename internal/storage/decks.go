package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// InsertDeck registers a new deck source.
func (db *DB) InsertDeck(ctx context.Context, deck domain.Deck) error {
	if deck.Type == "" {
		deck.Type = "local"
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO decks (id, name, path, type, last_scanned)
		VALUES (?, ?, ?, ?, ?)
	`, deck.ID, deck.Name, deck.Path, deck.Type, toMillis(deck.LastScanned))
	if err != nil {
		return fmt.Errorf("failed to insert deck %s: %w", deck.ID, err)
	}
	return nil
}

// FindDeck retrieves a deck by id. It returns nil, nil when no such deck exists.
func (db *DB) FindDeck(ctx context.Context, id string) (*domain.Deck, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, name, path, type, last_scanned
		FROM decks WHERE id = ?
	`, id)
	d, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Deck not found
		}
		return nil, fmt.Errorf("failed to find deck %s: %w", id, err)
	}
	return d, nil
}

// GetAllDecks retrieves all stored decks ordered by id.
func (db *DB) GetAllDecks(ctx context.Context) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, path, type, last_scanned
		FROM decks ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, *d)
	}
	return decks, rows.Err()
}

// UpdateDeckLastScanned records when a deck's source was last imported.
func (db *DB) UpdateDeckLastScanned(ctx context.Context, id string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE decks
		SET last_scanned = ?
		WHERE id = ?
	`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for deck %s: %w", id, err)
	}
	return nil
}

// DeleteDeck removes a deck together with all of its cards.
func (db *DB) DeleteDeck(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete of deck %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete deck %s: %w", id, domain.ErrDeckNotFound)
	}
	return nil
}

func scanDeck(s rowScanner) (*domain.Deck, error) {
	var d domain.Deck
	var lastScanned sql.NullInt64
	if err := s.Scan(&d.ID, &d.Name, &d.Path, &d.Type, &lastScanned); err != nil {
		return nil, err
	}
	d.LastScanned = fromMillis(lastScanned)
	return &d, nil
}
