// Package sqlstore implements C2, the relational Content Store, and
// also houses the relational tables for processing runs, spaced-rep
// cards, exercises, and mastery snapshots that other components
// (fsrs, cards, session, mastery) persist through. Two identifiers
// exist on a content row: content_uuid (crosses component boundaries)
// and an internal integer id, which stays package-private — no
// exported type here carries it.
package sqlstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS content (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_uuid TEXT UNIQUE NOT NULL,
	source_type TEXT NOT NULL,
	title TEXT,
	authors_json TEXT,
	source_url TEXT,
	source_file_path TEXT,
	full_text TEXT,
	raw_file_hash TEXT,
	status TEXT NOT NULL,
	vault_path TEXT,
	tags_json TEXT,
	metadata_json TEXT,
	created_at DATETIME NOT NULL,
	ingested_at DATETIME NOT NULL,
	processed_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_content_uuid ON content(content_uuid);
CREATE INDEX IF NOT EXISTS idx_content_type ON content(source_type);
CREATE INDEX IF NOT EXISTS idx_content_status ON content(status);
CREATE INDEX IF NOT EXISTS idx_content_hash ON content(raw_file_hash);
CREATE INDEX IF NOT EXISTS idx_content_url ON content(source_url);

CREATE TABLE IF NOT EXISTS annotations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_id INTEGER NOT NULL REFERENCES content(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	content TEXT,
	page_number INTEGER,
	position_json TEXT,
	context TEXT,
	confidence REAL
);
CREATE INDEX IF NOT EXISTS idx_annotations_content ON annotations(content_id);

CREATE TABLE IF NOT EXISTS processing_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_id INTEGER NOT NULL REFERENCES content(id) ON DELETE CASCADE,
	analysis_json TEXT,
	summaries_json TEXT,
	extraction_json TEXT,
	domain_tags_json TEXT,
	meta_tags_json TEXT,
	models_used_json TEXT,
	total_cost_usd REAL,
	latency_ms INTEGER,
	status TEXT NOT NULL,
	error_message TEXT,
	started_at DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_runs_content ON processing_runs(content_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON processing_runs(status);

CREATE TABLE IF NOT EXISTS run_concepts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES processing_runs(id) ON DELETE CASCADE,
	concept_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_connections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES processing_runs(id) ON DELETE CASCADE,
	connection_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES processing_runs(id) ON DELETE CASCADE,
	question TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_followups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES processing_runs(id) ON DELETE CASCADE,
	followup TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS spaced_rep_cards (
	id TEXT PRIMARY KEY,
	card_type TEXT NOT NULL,
	front TEXT,
	back TEXT,
	hints_json TEXT,
	tags_json TEXT,
	source_content_uuid TEXT,
	source_concept TEXT,
	state TEXT NOT NULL,
	stability REAL NOT NULL,
	difficulty REAL NOT NULL,
	due_date DATETIME NOT NULL,
	last_reviewed DATETIME,
	scheduled_days INTEGER,
	repetitions INTEGER,
	lapses INTEGER,
	total_reviews INTEGER,
	correct_reviews INTEGER
);
CREATE INDEX IF NOT EXISTS idx_cards_due ON spaced_rep_cards(due_date, state);
CREATE INDEX IF NOT EXISTS idx_cards_concept ON spaced_rep_cards(source_concept);

CREATE TABLE IF NOT EXISTS exercises (
	id TEXT PRIMARY KEY,
	exercise_type TEXT NOT NULL,
	topic TEXT,
	difficulty TEXT,
	prompt TEXT,
	hints_json TEXT,
	expected_key_points_json TEXT,
	worked_example TEXT,
	follow_up_problem TEXT,
	language TEXT,
	starter_code TEXT,
	solution_code TEXT,
	test_cases_json TEXT,
	buggy_code TEXT,
	estimated_time_minutes REAL
);
CREATE TABLE IF NOT EXISTS exercise_content_links (
	exercise_id TEXT NOT NULL REFERENCES exercises(id) ON DELETE CASCADE,
	content_uuid TEXT NOT NULL,
	PRIMARY KEY (exercise_id, content_uuid)
);

CREATE TABLE IF NOT EXISTS mastery_snapshots (
	snapshot_date DATE NOT NULL,
	topic_path TEXT NOT NULL,
	practice_count INTEGER,
	success_rate REAL,
	mastery_score REAL NOT NULL,
	trend TEXT,
	retention_estimate REAL,
	last_practiced DATETIME,
	days_since_review INTEGER,
	recommendation TEXT,
	suggested_exercise_types_json TEXT,
	PRIMARY KEY (snapshot_date, topic_path)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_topic ON mastery_snapshots(topic_path);

CREATE TABLE IF NOT EXISTS system_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store wraps a *sql.DB opened in WAL mode, grounded on the teacher's
// local_core.go bootstrap pattern.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the SQLite database at dsn and applies
// the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for components (costledger) that
// share the same database file.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }
