package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/due"
	"github.com/conorfennell/knolstudy/internal/session"
	"github.com/conorfennell/knolstudy/internal/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T) (*Server, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.InsertDeck(ctx, domain.Deck{ID: "go", Name: "Go", Path: t.TempDir(), Type: "local"}); err != nil {
		t.Fatalf("InsertDeck: %v", err)
	}
	for i, id := range []string{"c1", "c2"} {
		c := domain.Card{ID: id, DeckID: "go", Placement: domain.Placement{PartID: "p", ChapterID: "c", TopicID: "t", Position: i}, Front: "front " + id, Back: "back " + id}
		if err := db.InsertCard(ctx, c); err != nil {
			t.Fatalf("InsertCard: %v", err)
		}
	}

	m := session.NewManager(db, due.NewSelector(db), session.Options{Logger: quiet})
	return NewServer(db, m, t.TempDir(), quiet), db
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(UserHeader, "user-1")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func startSession(t *testing.T, s *Server) string {
	t.Helper()
	w := do(t, s, http.MethodPost, "/study/start", map[string]string{"deckId": "go"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start: status %d, body %s", w.Code, w.Body)
	}
	return decodeBody[map[string]string](t, w)["sessionId"]
}

func TestStudyFlow(t *testing.T) {
	s, _ := newTestServer(t)
	id := startSession(t, s)

	for i, want := range []string{"c1", "c2"} {
		w := do(t, s, http.MethodGet, "/study/next-card?deckId=go&sessionId="+id, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("next-card: status %d, body %s", w.Code, w.Body)
		}
		card := decodeBody[cardResponse](t, w)
		if card.ID != want || card.Back != "back "+want {
			t.Fatalf("next-card = %+v, want %s", card, want)
		}

		w = do(t, s, http.MethodPost, "/study/review", map[string]any{
			"cardId": card.ID, "sessionId": id, "quality": 4 + i, "timeTakenMs": 1000,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("review: status %d, body %s", w.Code, w.Body)
		}
	}

	w := do(t, s, http.MethodGet, "/study/next-card?deckId=go&sessionId="+id, nil)
	if strings.TrimSpace(w.Body.String()) != "null" {
		t.Errorf("exhausted next-card body = %q, want null", w.Body)
	}

	w = do(t, s, http.MethodPost, "/study/end", map[string]string{"sessionId": id})
	if w.Code != http.StatusOK {
		t.Fatalf("end: status %d, body %s", w.Code, w.Body)
	}
	got := decodeBody[map[string]float64](t, w)
	if got["totalCards"] != 2 || got["averageQuality"] != 4.5 || got["totalTimeMs"] != 2000 {
		t.Errorf("end = %v", got)
	}
}

func TestStudyErrors(t *testing.T) {
	s, _ := newTestServer(t)
	id := startSession(t, s)

	testCases := []struct {
		name   string
		method string
		target string
		body   any
		status int
	}{
		{"unknown deck", http.MethodPost, "/study/start", map[string]string{"deckId": "rust"}, http.StatusNotFound},
		{"missing deck id", http.MethodPost, "/study/start", map[string]string{}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/study/start", nil, http.StatusMethodNotAllowed},
		{"next card for other deck", http.MethodGet, "/study/next-card?deckId=rust&sessionId=" + id, nil, http.StatusNotFound},
		{"next card unknown session", http.MethodGet, "/study/next-card?deckId=go&sessionId=nope", nil, http.StatusNotFound},
		{"next card missing params", http.MethodGet, "/study/next-card", nil, http.StatusBadRequest},
		{"quality too high", http.MethodPost, "/study/review", map[string]any{"cardId": "c1", "sessionId": id, "quality": 6}, http.StatusBadRequest},
		{"quality missing", http.MethodPost, "/study/review", map[string]any{"cardId": "c1", "sessionId": id}, http.StatusBadRequest},
		{"negative time", http.MethodPost, "/study/review", map[string]any{"cardId": "c1", "sessionId": id, "quality": 3, "timeTakenMs": -5}, http.StatusBadRequest},
		{"out of order", http.MethodPost, "/study/review", map[string]any{"cardId": "c2", "sessionId": id, "quality": 3}, http.StatusConflict},
		{"review unknown session", http.MethodPost, "/study/review", map[string]any{"cardId": "c1", "sessionId": "nope", "quality": 3}, http.StatusNotFound},
		{"end unknown session", http.MethodPost, "/study/end", map[string]string{"sessionId": "nope"}, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, tc.method, tc.target, tc.body)
			if w.Code != tc.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.status, w.Body)
			}
		})
	}
}

func TestQualityZeroIsAccepted(t *testing.T) {
	s, _ := newTestServer(t)
	id := startSession(t, s)

	w := do(t, s, http.MethodPost, "/study/review", map[string]any{"cardId": "c1", "sessionId": id, "quality": 0})
	if w.Code != http.StatusOK {
		t.Fatalf("review with quality 0: status %d, body %s", w.Code, w.Body)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	s, _ := newTestServer(t)

	body := map[string]string{"deckId": "go", "padding": strings.Repeat("x", maxBodyBytes)}
	for _, target := range []string{"/study/start", "/sources"} {
		w := do(t, s, http.MethodPost, target, body)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("%s: status = %d, want %d", target, w.Code, http.StatusRequestEntityTooLarge)
		}
	}

	w := do(t, s, http.MethodPost, "/study/start", map[string]string{"deckId": "go", "padding": strings.Repeat("x", 1024)})
	if w.Code != http.StatusCreated {
		t.Errorf("small body: status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestReviewAfterEndConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	id := startSession(t, s)

	if w := do(t, s, http.MethodPost, "/study/end", map[string]string{"sessionId": id}); w.Code != http.StatusOK {
		t.Fatalf("end: status %d", w.Code)
	}
	w := do(t, s, http.MethodPost, "/study/review", map[string]any{"cardId": "c1", "sessionId": id, "quality": 4})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if msg := decodeBody[errorResponse](t, w).Error; msg == "" {
		t.Error("expected an error message")
	}
}

func TestGetDue(t *testing.T) {
	s, db := newTestServer(t)
	future := time.Now().Add(48 * time.Hour)
	later := domain.Card{ID: "c3", DeckID: "go", Placement: domain.Placement{PartID: "p", ChapterID: "c", TopicID: "t", Position: 2}, Schedule: domain.Schedule{DueAt: &future}}
	if err := db.InsertCard(context.Background(), later); err != nil {
		t.Fatalf("InsertCard: %v", err)
	}

	w := do(t, s, http.MethodGet, "/decks/go/due", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body)
	}
	got := decodeBody[map[string]any](t, w)
	if got["deckId"] != "go" || got["dueCount"] != float64(2) {
		t.Errorf("due = %v", got)
	}

	if w := do(t, s, http.MethodGet, "/decks/rust/due", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown deck status = %d, want 404", w.Code)
	}
}

func TestSourcesAndSync(t *testing.T) {
	s, _ := newTestServer(t)

	dir := t.TempDir()
	md := "# Maps\n## Basics\n### Zero value\nQ: Zero value of a map?\nA: nil\n"
	if err := os.WriteFile(filepath.Join(dir, "maps.md"), []byte(md), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w := do(t, s, http.MethodPost, "/sources", map[string]string{"deckId": "maps", "path": dir})
	if w.Code != http.StatusCreated {
		t.Fatalf("add source: status %d, body %s", w.Code, w.Body)
	}
	if added := decodeBody[deckResponse](t, w); added.Type != "local" || added.Name != "maps" {
		t.Errorf("added = %+v", added)
	}
	if w := do(t, s, http.MethodPost, "/sources", map[string]string{"deckId": "maps", "path": dir}); w.Code != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", w.Code)
	}

	w = do(t, s, http.MethodGet, "/sources", nil)
	if decks := decodeBody[[]deckResponse](t, w); len(decks) != 2 {
		t.Errorf("listed %d decks, want 2", len(decks))
	}

	w = do(t, s, http.MethodPost, "/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync: status %d, body %s", w.Code, w.Body)
	}
	var imported bool
	for _, r := range decodeBody[[]map[string]any](t, w) {
		if r["deckId"] == "maps" && r["inserted"] == float64(1) {
			imported = true
		}
	}
	if !imported {
		t.Error("maps deck was not imported")
	}

	if w := do(t, s, http.MethodDelete, "/sources/maps", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := do(t, s, http.MethodDelete, "/sources/maps", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body)
	}
}
