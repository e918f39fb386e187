package domain

import "time"

// Note is a single question-answer-context entry as authored in a deck source,
// together with the titles of the part, chapter and topic it appears under.
type Note struct {
	Question string
	Answer   string
	Context  string
	Part     string
	Chapter  string
	Topic    string
}

// Placement locates a card in its deck's hierarchy. The ancestor ids form the
// card's ownership chain; the ordinals give the deck's authored order.
type Placement struct {
	PartID    string
	ChapterID string
	TopicID   string

	PartOrder    int
	ChapterOrder int
	TopicOrder   int
	Position     int
}

// Less reports whether p sorts before o in hierarchical order.
func (p Placement) Less(o Placement) bool {
	if p.PartOrder != o.PartOrder {
		return p.PartOrder < o.PartOrder
	}
	if p.ChapterOrder != o.ChapterOrder {
		return p.ChapterOrder < o.ChapterOrder
	}
	if p.TopicOrder != o.TopicOrder {
		return p.TopicOrder < o.TopicOrder
	}
	return p.Position < o.Position
}

// Schedule is the spaced-repetition state of a card.
// DueAt and LastReviewedAt are nil until the first review.
type Schedule struct {
	Repetitions    int
	IntervalDays   int
	Easiness       float64
	DueAt          *time.Time
	LastReviewedAt *time.Time
}

// IsDue reports whether the schedule is eligible for review at now.
// A never-reviewed card is always due.
func (s Schedule) IsDue(now time.Time) bool {
	return s.DueAt == nil || !s.DueAt.After(now)
}

// Card is one flashcard's content and learning state.
type Card struct {
	ID     string
	DeckID string
	Placement
	Front   string
	Back    string
	Context string
	Schedule
	Version int64
}

// Deck is a named source of cards, either a local directory or a git URL.
type Deck struct {
	ID          string
	Name        string
	Path        string
	Type        string // "local" or "git"
	LastScanned *time.Time
}
