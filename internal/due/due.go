// Package due decides which cards of a deck a study session should cover and
// in what order.
package due

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// CardSource is the read-only view of the card arena the selector needs.
type CardSource interface {
	FindDeck(ctx context.Context, id string) (*domain.Deck, error)
	ListDueCards(ctx context.Context, deckID string, now time.Time) ([]domain.Card, error)
}

// Selector produces the ordered queue of due card ids for a deck.
type Selector struct {
	cards CardSource
}

// NewSelector creates a Selector reading from cards.
func NewSelector(cards CardSource) *Selector {
	return &Selector{cards: cards}
}

// Select returns the ids of every card in deckID due at now, most overdue
// first. The slice is a snapshot owned by the caller.
func (s *Selector) Select(ctx context.Context, deckID string, now time.Time) ([]string, error) {
	deck, err := s.cards.FindDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if deck == nil {
		return nil, fmt.Errorf("select due cards for %s: %w", deckID, domain.ErrDeckNotFound)
	}

	cards, err := s.cards.ListDueCards(ctx, deckID, now)
	if err != nil {
		return nil, err
	}
	// The store filters already, but a card whose due date moved between the
	// query and now must not slip in.
	eligible := cards[:0]
	for _, c := range cards {
		if c.IsDue(now) {
			eligible = append(eligible, c)
		}
	}

	Order(eligible, now)

	ids := make([]string, len(eligible))
	for i, c := range eligible {
		ids[i] = c.ID
	}
	return ids, nil
}

// Order sorts cards in place for review at now: by how long they have been
// overdue (longest first), then by the deck's hierarchical order, then by id.
// A card that was never reviewed counts as due exactly at now.
func Order(cards []domain.Card, now time.Time) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		oa, ob := overdue(a, now), overdue(b, now)
		if oa != ob {
			return oa > ob
		}
		if a.Placement.Less(b.Placement) {
			return true
		}
		if b.Placement.Less(a.Placement) {
			return false
		}
		return a.ID < b.ID
	})
}

func overdue(c domain.Card, now time.Time) time.Duration {
	if c.DueAt == nil {
		return 0
	}
	return now.Sub(*c.DueAt)
}
