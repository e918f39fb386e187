package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const cardColumns = `
	id, deck_id, part_id, chapter_id, topic_id,
	part_ord, chapter_ord, topic_ord, position,
	front, back, context,
	repetitions, interval_days, easiness, due_at, last_reviewed_at, version`

// InsertCard inserts a new card with a fresh schedule: no repetitions,
// initial easiness and no due date, so it is due immediately.
func (db *DB) InsertCard(ctx context.Context, card domain.Card) error {
	easiness := card.Easiness
	if easiness == 0 {
		easiness = 2.5
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID, card.DeckID, card.PartID, card.ChapterID, card.TopicID,
		card.PartOrder, card.ChapterOrder, card.TopicOrder, card.Position,
		card.Front, card.Back, card.Context,
		card.Repetitions, card.IntervalDays, easiness,
		toMillis(card.DueAt), toMillis(card.LastReviewedAt), card.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// FindCard retrieves a card by id. It returns nil, nil when no such card exists.
func (db *DB) FindCard(ctx context.Context, id string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	return c, nil
}

// GetCardsByDeckID retrieves every card of a deck in hierarchical order.
func (db *DB) GetCardsByDeckID(ctx context.Context, deckID string) ([]domain.Card, error) {
	return db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE deck_id = ?
		ORDER BY part_ord, chapter_ord, topic_ord, position, id
	`, deckID)
}

// ListDueCards retrieves the cards of a deck that are due at now.
// Never-reviewed cards have no due date and are always included.
// The result is unordered; ordering is the caller's concern.
func (db *DB) ListDueCards(ctx context.Context, deckID string, now time.Time) ([]domain.Card, error) {
	return db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE deck_id = ? AND (due_at IS NULL OR due_at <= ?)
	`, deckID, now.UnixMilli())
}

// CountDueCards counts the cards of a deck that are due at now.
func (db *DB) CountDueCards(ctx context.Context, deckID string, now time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cards
		WHERE deck_id = ? AND (due_at IS NULL OR due_at <= ?)
	`, deckID, now.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due cards for deck %s: %w", deckID, err)
	}
	return n, nil
}

// UpdateCardPlacement moves a card within its deck's hierarchy. Scheduling
// state and version are left alone.
func (db *DB) UpdateCardPlacement(ctx context.Context, id string, p domain.Placement) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET part_id = ?, chapter_id = ?, topic_id = ?,
		    part_ord = ?, chapter_ord = ?, topic_ord = ?, position = ?
		WHERE id = ?
	`, p.PartID, p.ChapterID, p.TopicID, p.PartOrder, p.ChapterOrder, p.TopicOrder, p.Position, id)
	if err != nil {
		return fmt.Errorf("failed to update placement for card %s: %w", id, err)
	}
	return nil
}

// DeleteCard removes a card and its review history.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}

// ApplyReview writes a card's new schedule and appends the review to the log
// in one transaction. The write only succeeds if the stored version still
// equals prior.Version; otherwise it fails with domain.ErrConcurrentReviewConflict
// and nothing is written. On success the stored version is prior.Version+1.
func (db *DB) ApplyReview(ctx context.Context, sessionID string, prior domain.Card, next domain.Schedule, rec domain.ReviewRecord) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET repetitions = ?, interval_days = ?, easiness = ?, due_at = ?, last_reviewed_at = ?,
		    version = version + 1
		WHERE id = ? AND version = ?
	`,
		next.Repetitions, next.IntervalDays, next.Easiness,
		toMillis(next.DueAt), toMillis(next.LastReviewedAt),
		prior.ID, prior.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule for card %s: %w", prior.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update for card %s: %w", prior.ID, err)
	}
	if n == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM cards WHERE id = ?`, prior.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("review card %s: %w", prior.ID, domain.ErrCardNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check card %s: %w", prior.ID, err)
		}
		return fmt.Errorf("review card %s at version %d: %w", prior.ID, prior.Version, domain.ErrConcurrentReviewConflict)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reviews (session_id, card_id, quality, time_taken_ms, reviewed_at, prev_interval_days, prev_easiness)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sessionID, prior.ID, rec.Quality, rec.TimeTakenMs, rec.ReviewedAt.UnixMilli(), prior.IntervalDays, prior.Easiness)
	if err != nil {
		return fmt.Errorf("failed to log review for card %s: %w", prior.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review for card %s: %w", prior.ID, err)
	}
	return nil
}

// ListSessionReviews returns the logged reviews of a session in the order they were accepted.
func (db *DB) ListSessionReviews(ctx context.Context, sessionID string) ([]domain.ReviewRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, quality, time_taken_ms, reviewed_at
		FROM reviews WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var reviews []domain.ReviewRecord
	for rows.Next() {
		var r domain.ReviewRecord
		var at int64
		if err := rows.Scan(&r.CardID, &r.Quality, &r.TimeTakenMs, &at); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		r.ReviewedAt = time.UnixMilli(at).UTC()
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func scanCard(s rowScanner) (*domain.Card, error) {
	var c domain.Card
	var dueAt, lastReviewed sql.NullInt64
	err := s.Scan(
		&c.ID, &c.DeckID, &c.PartID, &c.ChapterID, &c.TopicID,
		&c.PartOrder, &c.ChapterOrder, &c.TopicOrder, &c.Position,
		&c.Front, &c.Back, &c.Context,
		&c.Repetitions, &c.IntervalDays, &c.Easiness, &dueAt, &lastReviewed, &c.Version,
	)
	if err != nil {
		return nil, err
	}
	c.DueAt = fromMillis(dueAt)
	c.LastReviewedAt = fromMillis(lastReviewed)
	return &c, nil
}
