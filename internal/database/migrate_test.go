package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := schemaVersion(db.conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateNodeDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	// Simulate a pre-migration database: create tables without setting user_version.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	_, err = raw.Exec(`CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		session_data TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'new',
		evaluation_results TEXT,
		title_score INTEGER,
		title_justification TEXT,
		description_score INTEGER,
		description_justification TEXT,
		key_takeaways_score INTEGER,
		key_takeaways_justification TEXT,
		given_before_score INTEGER,
		given_before_justification TEXT,
		evaluation_score_total INTEGER,
		created_at TEXT NOT NULL,
		completed_at TEXT
	)`)
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	_, err = raw.Exec(`CREATE TABLE speakers (id TEXT PRIMARY KEY, full_name TEXT NOT NULL);
		CREATE TABLE session_speakers (session_id TEXT NOT NULL, speaker_id TEXT NOT NULL,
			PRIMARY KEY (session_id, speaker_id))`)
	if err != nil {
		t.Fatalf("create legacy tables: %v", err)
	}
	legacy, err := isNodeDB(raw)
	if err != nil || !legacy {
		t.Fatalf("expected legacy detection, got (%v, %v)", legacy, err)
	}
	_, err = raw.Exec(`INSERT INTO sessions (id, title, session_data, created_at)
		VALUES ('legacy-1', 'Old talk', '{}', '2025-01-01T00:00:00.000Z')`)
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	raw.Close()

	// Now open via the migration system.
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	version, err := schemaVersion(db.conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d after legacy migration, got %d", latestVersion(), version)
	}

	// Data written by the earlier tool survives and later tables exist.
	s, err := db.GetSession("legacy-1")
	if err != nil || s == nil {
		t.Fatalf("expected legacy session, got (%v, %v)", s, err)
	}
	if _, err := db.GetSpeakerEvaluationHistory("anyone"); err != nil {
		t.Errorf("expected speaker_evaluations table after upgrade: %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := schemaVersion(db2.conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := schemaVersion(conn)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}

func TestIsNodeDBFalseOnNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	legacy, err := isNodeDB(conn)
	if err != nil {
		t.Fatalf("isNodeDB: %v", err)
	}
	if legacy {
		t.Error("expected isNodeDB=false on empty database")
	}
}

func TestMigratePartialNodeDBNotStamped(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "partial.db")

	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	_, err = raw.Exec(`CREATE TABLE session_speakers (session_id TEXT NOT NULL, speaker_id TEXT NOT NULL,
		PRIMARY KEY (session_id, speaker_id))`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	node, err := isNodeDB(raw)
	if err != nil || node {
		t.Fatalf("expected partial schema to be left unstamped, got (%v, %v)", node, err)
	}
	raw.Close()

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	// Migration 1 ran and created the missing tables.
	if _, err := db.GetAllSpeakers(); err != nil {
		t.Errorf("expected speakers table: %v", err)
	}
	version, err := schemaVersion(db.conn)
	if err != nil || version != latestVersion() {
		t.Errorf("expected version %d, got (%d, %v)", latestVersion(), version, err)
	}
}
