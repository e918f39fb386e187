package web

import (
	"net/http"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/sm2"
)

type cardResponse struct {
	ID    string `json:"id"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

// handleStartSession opens a session over the deck's due cards.
func (s *Server) handleStartSession() http.HandlerFunc {
	type request struct {
		DeckID string `json:"deckId" validate:"required"`
	}
	type response struct {
		SessionID string `json:"sessionId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		var req request
		if !s.decode(w, r, &req) {
			return
		}
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			userID = anonymousUser
		}
		id, err := s.sessions.Start(r.Context(), req.DeckID, userID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, response{SessionID: id})
	}
}

// handleNextCard returns the session's current card, or null once the queue
// is exhausted.
func (s *Server) handleNextCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w)
			return
		}
		deckID := r.URL.Query().Get("deckId")
		sessionID := r.URL.Query().Get("sessionId")
		if deckID == "" || sessionID == "" {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "deckId and sessionId are required"})
			return
		}

		sess, err := s.sessions.Session(sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if sess.DeckID != deckID {
			s.writeError(w, domain.ErrSessionNotFound)
			return
		}

		card, err := s.sessions.NextCard(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if card == nil {
			s.writeJSON(w, http.StatusOK, nil)
			return
		}
		s.writeJSON(w, http.StatusOK, cardResponse{ID: card.ID, Front: card.Front, Back: card.Back})
	}
}

// handleSubmitReview grades the session's current card.
func (s *Server) handleSubmitReview() http.HandlerFunc {
	type request struct {
		CardID      string `json:"cardId" validate:"required"`
		SessionID   string `json:"sessionId" validate:"required"`
		Quality     *int   `json:"quality" validate:"required,min=0,max=5"`
		TimeTakenMs int64  `json:"timeTakenMs" validate:"min=0"`
	}
	type response struct {
		OK bool `json:"ok"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		var req request
		if !s.decode(w, r, &req) {
			return
		}
		err := s.sessions.SubmitReview(r.Context(), req.SessionID, req.CardID, sm2.Quality(*req.Quality), req.TimeTakenMs)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, response{OK: true})
	}
}

// handleEndSession closes the session and returns its statistics.
func (s *Server) handleEndSession() http.HandlerFunc {
	type request struct {
		SessionID string `json:"sessionId" validate:"required"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		var req request
		if !s.decode(w, r, &req) {
			return
		}
		summary, err := s.sessions.End(r.Context(), req.SessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, summary)
	}
}
