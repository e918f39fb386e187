package web

import (
	"net/http"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/gitsource"
	"github.com/conorfennell/knolstudy/internal/sync"
)

type deckResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"lastScanned"`
}

func toDeckResponse(d domain.Deck) deckResponse {
	return deckResponse{ID: d.ID, Name: d.Name, Path: d.Path, Type: d.Type, LastScanned: d.LastScanned}
}

// handleSources handles both GET and POST for the deck sources.
func (s *Server) handleSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.handleGetSources(w, r)
		case http.MethodPost:
			s.handlePostSource(w, r)
		default:
			s.methodNotAllowed(w)
		}
	}
}

func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	decks, err := s.db.GetAllDecks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]deckResponse, 0, len(decks))
	for _, d := range decks {
		out = append(out, toDeckResponse(d))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handlePostSource registers a new deck source. It is imported on the next sync.
func (s *Server) handlePostSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeckID string `json:"deckId" validate:"required"`
		Name   string `json:"name"`
		Path   string `json:"path" validate:"required"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	deck := domain.Deck{ID: req.DeckID, Name: req.Name, Path: req.Path, Type: "local"}
	if deck.Name == "" {
		deck.Name = deck.ID
	}
	if gitsource.IsGitURL(deck.Path) {
		deck.Type = "git"
	}

	existing, err := s.db.FindDeck(r.Context(), deck.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if existing != nil {
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: "deck " + deck.ID + " already exists"})
		return
	}
	if err := s.db.InsertDeck(r.Context(), deck); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toDeckResponse(deck))
}

// handleDeleteSource removes a deck and its cards.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			s.methodNotAllowed(w)
			return
		}
		if err := s.db.DeleteDeck(r.Context(), r.PathValue("deckId")); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync imports every deck source and reports what changed.
func (s *Server) handlePostSync() http.HandlerFunc {
	type result struct {
		DeckID   string   `json:"deckId"`
		Parsed   int      `json:"parsed"`
		Inserted int      `json:"inserted"`
		Moved    int      `json:"moved"`
		Deleted  int      `json:"deleted"`
		Errors   []string `json:"errors,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}

		// Run in the foreground to make the caller wait
		results, err := sync.RunSync(r.Context(), s.db, s.reposDir)
		if err != nil {
			s.writeError(w, err)
			return
		}
		out := make([]result, 0, len(results))
		for _, res := range results {
			item := result{
				DeckID:   res.DeckID,
				Parsed:   res.Parsed,
				Inserted: res.Inserted,
				Moved:    res.Moved,
				Deleted:  res.Deleted,
			}
			for _, e := range res.Errors {
				item.Errors = append(item.Errors, e.Error())
			}
			out = append(out, item)
		}
		s.writeJSON(w, http.StatusOK, out)
	}
}
