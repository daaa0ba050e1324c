package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "sessions, speakers and junction",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS speakers (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    full_name TEXT NOT NULL,
    bio TEXT NOT NULL,
    tag_line TEXT NOT NULL,
    profile_picture TEXT NOT NULL,
    is_top_speaker BOOLEAN NOT NULL DEFAULT 0,
    sessions TEXT NOT NULL,
    links TEXT NOT NULL,
    question_answers TEXT NOT NULL,
    categories TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
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
);

CREATE TABLE IF NOT EXISTS session_speakers (
    session_id TEXT NOT NULL,
    speaker_id TEXT NOT NULL,
    PRIMARY KEY (session_id, speaker_id),
    FOREIGN KEY (session_id) REFERENCES sessions(id),
    FOREIGN KEY (speaker_id) REFERENCES speakers(id)
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "speaker evaluation log",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS speaker_evaluations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    speaker_id TEXT NOT NULL REFERENCES speakers(id),
    profile_url TEXT NOT NULL DEFAULT '',
    evaluations_expertise_match INTEGER NOT NULL,
    evaluations_expertise_match_justification TEXT NOT NULL,
    evaluations_topics_relevance INTEGER NOT NULL,
    evaluations_topics_relevance_justification TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_session_speakers_speaker ON session_speakers(speaker_id);
CREATE INDEX IF NOT EXISTS idx_speaker_evaluations_speaker ON speaker_evaluations(speaker_id, created_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
