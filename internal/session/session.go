// Package session runs study sessions: it fixes a queue of due cards when a
// session starts, serves them one at a time, records reviews through the card
// store and summarises the session when it ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/sm2"
	"github.com/conorfennell/knolstudy/internal/stats"
)

// CardStore is durable per-card scheduling state with version-checked writes.
type CardStore interface {
	FindCard(ctx context.Context, id string) (*domain.Card, error)
	// ApplyReview must fail with domain.ErrConcurrentReviewConflict when the
	// stored version no longer equals prior.Version.
	ApplyReview(ctx context.Context, sessionID string, prior domain.Card, next domain.Schedule, rec domain.ReviewRecord) error
}

// DueSelector produces a deck's ordered due queue.
type DueSelector interface {
	Select(ctx context.Context, deckID string, now time.Time) ([]string, error)
}

// Options tunes a Manager. Zero values pick the defaults noted per field.
type Options struct {
	IdleTimeout    time.Duration    // zero disables idle expiry
	Retention      time.Duration    // how long completed sessions stay queryable; zero keeps them
	ReviewAttempts int              // zero means 3
	Clock          func() time.Time // nil means time.Now
	NewID          func() string    // nil means random UUIDs
	Logger         *slog.Logger     // nil means slog.Default()
}

// Manager owns the lifecycle of every study session in the process.
// Sessions are serialised individually; there is no lock shared across them
// beyond the registry map.
type Manager struct {
	cards    CardStore
	selector DueSelector

	idleTimeout time.Duration
	retention   time.Duration
	attempts    int
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu           sync.Mutex
	session      domain.StudySession
	lastActivity time.Time
	summary      *stats.Summary
}

// NewManager creates a Manager backed by cards and selector.
func NewManager(cards CardStore, selector DueSelector, opts Options) *Manager {
	m := &Manager{
		cards:       cards,
		selector:    selector,
		idleTimeout: opts.IdleTimeout,
		retention:   opts.Retention,
		attempts:    opts.ReviewAttempts,
		now:         opts.Clock,
		newID:       opts.NewID,
		logger:      opts.Logger,
		sessions:    make(map[string]*entry),
	}
	if m.attempts <= 0 {
		m.attempts = 3
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Start creates a session over deckID's cards that are due now and returns
// its id. A deck with nothing due still gets a session; it simply has no
// next card.
func (m *Manager) Start(ctx context.Context, deckID, userID string) (string, error) {
	now := m.now()
	queue, err := m.selector.Select(ctx, deckID, now)
	if err != nil {
		return "", fmt.Errorf("start session for deck %s: %w", deckID, err)
	}

	e := &entry{
		session: domain.StudySession{
			ID:        m.newID(),
			DeckID:    deckID,
			UserID:    userID,
			StartedAt: now,
			Status:    domain.SessionCreated,
			Queue:     queue,
		},
		lastActivity: now,
	}
	e.session.Status = domain.SessionActive

	m.mu.Lock()
	m.sessions[e.session.ID] = e
	m.mu.Unlock()

	m.logger.Info("session started",
		"session_id", e.session.ID,
		"deck_id", deckID,
		"user_id", userID,
		"queue", len(queue),
	)
	return e.session.ID, nil
}

// NextCard returns the card at the session's cursor, read fresh from the
// store, or nil once every queued card has been reviewed. Repeated calls serve
// the same card until it is reviewed; the cursor only moves past queued cards
// that have since been deleted from the store.
func (m *Manager) NextCard(ctx context.Context, sessionID string) (*domain.Card, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now()
	m.expireIfIdle(e, now)
	if e.session.Status == domain.SessionCompleted {
		return nil, fmt.Errorf("next card for session %s: %w", sessionID, domain.ErrSessionCompleted)
	}
	e.lastActivity = now

	card, err := m.skipMissing(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("next card for session %s: %w", sessionID, err)
	}
	return card, nil
}

// skipMissing advances the cursor past queued cards that no longer exist and
// returns the first one that does, or nil when the queue is exhausted. No
// review is recorded for skipped cards. The caller holds e.mu.
func (m *Manager) skipMissing(ctx context.Context, e *entry) (*domain.Card, error) {
	for {
		cardID, ok := e.session.Current()
		if !ok {
			return nil, nil
		}
		card, err := m.cards.FindCard(ctx, cardID)
		if err != nil {
			return nil, err
		}
		if card != nil {
			return card, nil
		}
		m.skip(e, cardID)
	}
}

func (m *Manager) skip(e *entry, cardID string) {
	m.logger.Warn("queued card no longer exists, skipping",
		"session_id", e.session.ID,
		"card_id", cardID,
		"cursor", e.session.Cursor,
	)
	e.session.Cursor++
}

// SubmitReview records a review of the session's current card. The card's
// new schedule is written with a version check and recomputed on conflict,
// up to the configured number of attempts. The cursor only advances once the
// write has committed.
func (m *Manager) SubmitReview(ctx context.Context, sessionID, cardID string, quality sm2.Quality, timeTakenMs int64) error {
	if !quality.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuality, int(quality))
	}
	if timeTakenMs < 0 {
		timeTakenMs = 0
	}

	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now()
	m.expireIfIdle(e, now)
	if e.session.Status == domain.SessionCompleted {
		return fmt.Errorf("review in session %s: %w", sessionID, domain.ErrSessionCompleted)
	}

	current, ok := e.session.Current()
	if ok && current != cardID {
		// The client may be reviewing the card after one that was deleted.
		card, err := m.skipMissing(ctx, e)
		if err != nil {
			return fmt.Errorf("review of %s in session %s: %w", cardID, sessionID, err)
		}
		current, ok = "", false
		if card != nil {
			current, ok = card.ID, true
		}
	}
	if !ok || current != cardID {
		return fmt.Errorf("review of %s in session %s: %w", cardID, sessionID, domain.ErrOutOfOrderReview)
	}

	rec := domain.ReviewRecord{
		CardID:      cardID,
		Quality:     int(quality),
		TimeTakenMs: timeTakenMs,
		ReviewedAt:  now,
	}
	if err := m.applyReview(ctx, sessionID, rec, quality); err != nil {
		if errors.Is(err, domain.ErrCardNotFound) {
			m.skip(e, cardID)
			e.lastActivity = now
		}
		return err
	}

	e.session.Reviews = append(e.session.Reviews, rec)
	e.session.Cursor++
	e.lastActivity = now
	return nil
}

func (m *Manager) applyReview(ctx context.Context, sessionID string, rec domain.ReviewRecord, quality sm2.Quality) error {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		card, err := m.cards.FindCard(ctx, rec.CardID)
		if err != nil {
			return fmt.Errorf("review of %s: %w", rec.CardID, err)
		}
		if card == nil {
			return fmt.Errorf("review of %s: %w", rec.CardID, domain.ErrCardNotFound)
		}

		next, err := sm2.Next(card.Schedule, quality, rec.ReviewedAt)
		if err != nil {
			return err
		}

		err = m.cards.ApplyReview(ctx, sessionID, *card, next, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConcurrentReviewConflict) {
			return fmt.Errorf("review of %s: %w", rec.CardID, err)
		}
		lastErr = err
		m.logger.Warn("review conflict, retrying",
			"session_id", sessionID,
			"card_id", rec.CardID,
			"attempt", attempt,
		)
	}
	return fmt.Errorf("review of %s after %d attempts: %w", rec.CardID, m.attempts, lastErr)
}

// End completes the session and returns its summary. Ending a completed
// session returns the summary computed the first time. End never waits on
// other sessions, but it does wait behind a review of this session whose
// store write is still in flight.
func (m *Manager) End(ctx context.Context, sessionID string) (stats.Summary, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return stats.Summary{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now()
	m.expireIfIdle(e, now)
	if e.session.Status != domain.SessionCompleted {
		m.complete(e, now)
		m.logger.Info("session ended",
			"session_id", sessionID,
			"reviewed", e.summary.TotalCards,
			"remaining", e.session.Remaining(),
		)
	}
	return *e.summary, nil
}

// Session returns a copy of the session's current state.
func (m *Manager) Session(sessionID string) (domain.StudySession, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return domain.StudySession{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	m.expireIfIdle(e, m.now())
	return e.session.Clone(), nil
}

// Sweep ends sessions idle for longer than the idle timeout and forgets
// completed sessions older than the retention period. Sessions busy with a
// request are skipped until the next sweep.
func (m *Manager) Sweep() (ended, evicted int) {
	now := m.now()

	m.mu.RLock()
	entries := make(map[string]*entry, len(m.sessions))
	for id, e := range m.sessions {
		entries[id] = e
	}
	m.mu.RUnlock()

	var expired []string
	for id, e := range entries {
		if !e.mu.TryLock() {
			continue
		}
		if m.expireIfIdle(e, now) {
			ended++
		}
		if m.retention > 0 && e.session.Status == domain.SessionCompleted && now.Sub(*e.session.EndedAt) > m.retention {
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}

	if len(expired) > 0 {
		m.mu.Lock()
		for _, id := range expired {
			if m.sessions[id] == entries[id] {
				delete(m.sessions, id)
				evicted++
			}
		}
		m.mu.Unlock()
	}

	if ended > 0 || evicted > 0 {
		m.logger.Info("session sweep", "ended", ended, "evicted", evicted)
	}
	return ended, evicted
}

// Run sweeps on every tick of interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Len is the number of sessions currently held, active or completed.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	return e, nil
}

// expireIfIdle ends an active session whose last activity is older than the
// idle timeout. The caller holds e.mu.
func (m *Manager) expireIfIdle(e *entry, now time.Time) bool {
	if m.idleTimeout <= 0 || e.session.Status == domain.SessionCompleted {
		return false
	}
	if now.Sub(e.lastActivity) <= m.idleTimeout {
		return false
	}
	m.complete(e, now)
	m.logger.Info("session ended after idle timeout",
		"session_id", e.session.ID,
		"idle", now.Sub(e.lastActivity).Round(time.Second),
	)
	return true
}

// complete moves the session to its terminal state. The caller holds e.mu.
func (m *Manager) complete(e *entry, at time.Time) {
	e.session.EndedAt = &at
	e.session.Status = domain.SessionCompleted
	summary := stats.Aggregate(e.session.Reviews)
	e.summary = &summary
}
