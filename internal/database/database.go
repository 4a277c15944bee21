package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
	path string
}

// New opens the proposition database at path.
// "sqlite://" prefixes are accepted; ":memory:" is supported for tests.
func New(dsn string) (*DB, error) {
	path := strings.TrimPrefix(dsn, "sqlite://")
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; keep one connection so transactions and
	// in-memory databases behave consistently.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("✅ SQLite database opened (%s)", path)

	return &DB{DB: db, path: path}, nil
}

// Path returns the database location
func (db *DB) Path() string {
	return db.path
}

// Initialize creates all required tables, indexes and FTS triggers
func (db *DB) Initialize() error {
	log.Println("🔍 Checking database schema...")

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := db.runMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("✅ Database initialized successfully")
	return nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS propositions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		text       TEXT    NOT NULL,
		reasoning  TEXT    NOT NULL DEFAULT '',
		confidence INTEGER NOT NULL CHECK (confidence BETWEEN 1 AND 10),
		decay      INTEGER NOT NULL DEFAULT 5 CHECK (decay BETWEEN 1 AND 10),
		created_at TEXT    NOT NULL,
		updated_at TEXT    NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_prop_confidence ON propositions(confidence, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_prop_created    ON propositions(created_at DESC);

	CREATE VIRTUAL TABLE IF NOT EXISTS propositions_fts USING fts5(
		text,
		reasoning,
		content='propositions',
		content_rowid='id'
	);

	CREATE TABLE IF NOT EXISTS suggestion_batches (
		batch_id                  TEXT    PRIMARY KEY,
		trigger_proposition_id    INTEGER,
		generated_at              TEXT    NOT NULL,
		processing_time_seconds   REAL    NOT NULL DEFAULT 0,
		context_propositions_used INTEGER NOT NULL DEFAULT 0,
		bundles_used              INTEGER NOT NULL DEFAULT 0,
		scoring_strategy          TEXT    NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS suggestions (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id               TEXT    NOT NULL,
		title                  TEXT    NOT NULL,
		description            TEXT    NOT NULL,
		category               TEXT    NOT NULL,
		rationale              TEXT    NOT NULL DEFAULT '',
		expected_utility       REAL    NOT NULL,
		probability_useful     REAL    NOT NULL,
		urgency                TEXT    NOT NULL DEFAULT '',
		action_items           TEXT    NOT NULL DEFAULT '[]',
		trigger_proposition_id INTEGER,
		delivered              INTEGER NOT NULL DEFAULT 0,
		delivered_at           TEXT,
		created_at             TEXT    NOT NULL,
		FOREIGN KEY (batch_id) REFERENCES suggestion_batches(batch_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sugg_batch     ON suggestions(batch_id);
	CREATE INDEX IF NOT EXISTS idx_sugg_delivered ON suggestions(delivered, created_at DESC);
`

// runMigrations applies idempotent schema evolution steps
func (db *DB) runMigrations() error {
	exists, err := db.triggerExists("prop_fts_insert")
	if err != nil {
		return err
	}
	if !exists {
		log.Println("📦 Creating proposition FTS triggers...")
		triggers := `
			CREATE TRIGGER prop_fts_insert AFTER INSERT ON propositions BEGIN
				INSERT INTO propositions_fts(rowid, text, reasoning)
				VALUES (new.id, new.text, new.reasoning);
			END;

			CREATE TRIGGER prop_fts_delete AFTER DELETE ON propositions BEGIN
				INSERT INTO propositions_fts(propositions_fts, rowid, text, reasoning)
				VALUES ('delete', old.id, old.text, old.reasoning);
			END;

			CREATE TRIGGER prop_fts_update AFTER UPDATE ON propositions BEGIN
				INSERT INTO propositions_fts(propositions_fts, rowid, text, reasoning)
				VALUES ('delete', old.id, old.text, old.reasoning);
				INSERT INTO propositions_fts(rowid, text, reasoning)
				VALUES (new.id, new.text, new.reasoning);
			END;
		`
		if _, err := db.Exec(triggers); err != nil {
			return fmt.Errorf("failed to create FTS triggers: %w", err)
		}

		// Index rows written before the triggers existed
		if _, err := db.Exec(`INSERT INTO propositions_fts(propositions_fts) VALUES ('rebuild')`); err != nil {
			return fmt.Errorf("failed to rebuild FTS index: %w", err)
		}
	}

	hasColumn, err := db.columnExists("suggestions", "delivered_at")
	if err != nil {
		return err
	}
	if !hasColumn {
		log.Println("📦 Adding suggestions.delivered_at column...")
		if _, err := db.Exec(`ALTER TABLE suggestions ADD COLUMN delivered_at TEXT`); err != nil {
			return fmt.Errorf("failed to add delivered_at: %w", err)
		}
	}

	return nil
}

// TableExists reports whether a table (or virtual table) exists
func (db *DB) TableExists(tableName string) (bool, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) triggerExists(name string) (bool, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) columnExists(tableName, columnName string) (bool, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", tableName, columnName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
