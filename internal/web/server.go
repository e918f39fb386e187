package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/session"
	"github.com/conorfennell/knolstudy/internal/storage"
)

// UserHeader carries the caller's user id. Requests without it study as
// anonymousUser.
const UserHeader = "X-User-ID"

const anonymousUser = "anonymous"

// maxBodyBytes caps the size of a JSON request body.
const maxBodyBytes = 64 << 10

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	sessions *session.Manager
	reposDir string
	router   *http.ServeMux
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, sessions *session.Manager, reposDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:       db,
		sessions: sessions,
		reposDir: reposDir,
		router:   http.NewServeMux(),
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.router.ServeHTTP(rec, r)
	s.logger.Info("http request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealthz())

	// Study session routes
	s.router.HandleFunc("/study/start", s.handleStartSession())
	s.router.HandleFunc("/study/next-card", s.handleNextCard())
	s.router.HandleFunc("/study/review", s.handleSubmitReview())
	s.router.HandleFunc("/study/end", s.handleEndSession())

	s.router.HandleFunc("/decks/{deckId}/due", s.handleGetDue())

	// Source management routes
	s.router.HandleFunc("/sources", s.handleSources())
	s.router.HandleFunc("/sources/{deckId}", s.handleDeleteSource())
	s.router.HandleFunc("/sync", s.handlePostSync())
}

func (s *Server) handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.Error("Health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}
}

// handleGetDue reports how many of a deck's cards are due now.
func (s *Server) handleGetDue() http.HandlerFunc {
	type response struct {
		DeckID   string `json:"deckId"`
		DueCount int    `json:"dueCount"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w)
			return
		}
		deckID := r.PathValue("deckId")
		deck, err := s.db.FindDeck(r.Context(), deckID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if deck == nil {
			s.writeError(w, domain.ErrDeckNotFound)
			return
		}
		n, err := s.db.CountDueCards(r.Context(), deckID, s.now())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, response{DeckID: deckID, DueCount: n})
	}
}

// decode reads a JSON body of at most maxBodyBytes into v and validates it.
// It writes a 413 or 400 and returns false when the body is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response", "error", err)
	}
}

// writeError maps domain errors to status codes. Anything unrecognised is a
// server-side failure and its detail is only logged.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
		msg = "internal server error"
	}
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuality):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrCardNotFound),
		errors.Is(err, domain.ErrDeckNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionCompleted),
		errors.Is(err, domain.ErrOutOfOrderReview),
		errors.Is(err, domain.ErrConcurrentReviewConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
