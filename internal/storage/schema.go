package storage

const schema = `
-- The 'decks' table tracks where a deck's cards come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- 'local' or 'git'
    last_scanned INTEGER               -- unix millis
);

-- The 'cards' table is an arena of cards keyed by id. Each card carries its
-- ancestor ids and hierarchical ordinals instead of living in a tree.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    part_id TEXT NOT NULL,
    chapter_id TEXT NOT NULL,
    topic_id TEXT NOT NULL,
    part_ord INTEGER NOT NULL DEFAULT 0,
    chapter_ord INTEGER NOT NULL DEFAULT 0,
    topic_ord INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0,
    front TEXT NOT NULL,
    back TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    repetitions INTEGER NOT NULL DEFAULT 0,
    interval_days INTEGER NOT NULL DEFAULT 0,
    easiness REAL NOT NULL DEFAULT 2.5,
    due_at INTEGER,           -- unix millis, NULL until the first review
    last_reviewed_at INTEGER, -- unix millis
    version INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_deck_due ON cards(deck_id, due_at);

-- The 'reviews' table is an append-only log of accepted reviews.
CREATE TABLE IF NOT EXISTS reviews (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    quality INTEGER NOT NULL,
    time_taken_ms INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL,
    prev_interval_days INTEGER NOT NULL,
    prev_easiness REAL NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_reviews_session ON reviews(session_id);
`
