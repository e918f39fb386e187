package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/knolstudy/internal/domain"
)

func normalizePart(part string) string {
	p := strings.ToLower(part)
	p = strings.ReplaceAll(p, "\r\n", "\n")
	p = strings.TrimSpace(p)
	return p
}

// Normalize concatenates the note's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(note domain.Note) string {
	q := normalizePart(note.Question)
	a := normalizePart(note.Answer)
	c := normalizePart(note.Context)

	// We join with a newline to ensure separation between fields,
	// preventing accidental joining of words. e.g. "question" and "answer"
	// becoming "questionanswer".
	return strings.Join([]string{q, a, c}, "\n")
}

// Hash returns the SHA-256 hex digest of the normalized note.
func Hash(note domain.Note) string {
	return digest(Normalize(note))
}

// CardID identifies a note placed in a deck. The same text under two topics,
// or in two decks, yields two different cards.
func CardID(deckID string, note domain.Note) string {
	return digest(strings.Join([]string{
		deckID,
		NodeID(deckID, note.Part, note.Chapter, note.Topic),
		Hash(note),
	}, "\n"))
}

// NodeID identifies a part, chapter or topic by the deck id and the titles on
// the path down to it, e.g. NodeID(deck, part) or NodeID(deck, part, chapter).
func NodeID(deckID string, titles ...string) string {
	parts := make([]string, 0, len(titles)+1)
	parts = append(parts, deckID)
	for _, t := range titles {
		parts = append(parts, normalizePart(t))
	}
	return digest(strings.Join(parts, "\x1f"))
}

func digest(s string) string {
	hashBytes := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", hashBytes)
}
