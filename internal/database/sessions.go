package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lirantal/devrel-cfp-committee/internal/scores"
	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

const sessionColumns = `id, title, session_data, status,
	title_score, title_justification, description_score, description_justification,
	key_takeaways_score, key_takeaways_justification, given_before_score, given_before_justification,
	evaluation_score_total, created_at, completed_at`

// UpsertSession inserts a session or fully replaces the stored row with the
// same id. A replaced session goes back to status new.
func (db *DB) UpsertSession(s sessionize.Session) error {
	data := []byte(s.Raw)
	if len(data) == 0 {
		var err error
		if data, err = json.Marshal(s); err != nil {
			return fmt.Errorf("encoding session %s: %w", s.ID, err)
		}
	}

	_, err := db.conn.Exec(
		`INSERT INTO sessions (id, title, session_data, status, created_at)
		VALUES (?, ?, ?, 'new', ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			session_data = excluded.session_data,
			status = 'new',
			evaluation_results = NULL,
			title_score = NULL, title_justification = NULL,
			description_score = NULL, description_justification = NULL,
			key_takeaways_score = NULL, key_takeaways_justification = NULL,
			given_before_score = NULL, given_before_justification = NULL,
			evaluation_score_total = NULL,
			created_at = excluded.created_at,
			completed_at = NULL`,
		s.ID, s.Title, string(data), db.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", s.ID, err)
	}
	return nil
}

// RecordSessionEvaluation stores the evaluation of a session, computes its
// total and marks it ready. Repeating the call overwrites the prior result.
func (db *DB) RecordSessionEvaluation(sessionID string, sc scores.Session) error {
	results, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encoding evaluation: %w", err)
	}

	res, err := db.conn.Exec(
		`UPDATE sessions SET
			status = 'ready',
			evaluation_results = ?,
			title_score = ?, title_justification = ?,
			description_score = ?, description_justification = ?,
			key_takeaways_score = ?, key_takeaways_justification = ?,
			given_before_score = ?, given_before_justification = ?,
			evaluation_score_total = ?,
			completed_at = ?
		WHERE id = ?`,
		string(results),
		sc.Title.Score, sc.Title.Justification,
		sc.Description.Score, sc.Description.Justification,
		sc.KeyTakeaways.Score, sc.KeyTakeaways.Justification,
		sc.GivenBefore.Score, sc.GivenBefore.Justification,
		sc.Total(),
		db.timestamp(),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("recording evaluation for %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// GetSession returns a single session by id, or nil if it does not exist.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	row := db.conn.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetUnprocessedSessions returns sessions with status new, oldest first.
func (db *DB) GetUnprocessedSessions() ([]Session, error) {
	return db.querySessions(`SELECT ` + sessionColumns + ` FROM sessions
		WHERE status = 'new' ORDER BY created_at ASC, rowid ASC`)
}

// GetProcessedSessions returns sessions with status ready, most recently
// completed first.
func (db *DB) GetProcessedSessions() ([]Session, error) {
	return db.querySessions(`SELECT ` + sessionColumns + ` FROM sessions
		WHERE status = 'ready' ORDER BY completed_at DESC, rowid DESC`)
}

// GetAllSessions returns every session in import order.
func (db *DB) GetAllSessions() ([]Session, error) {
	return db.querySessions(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at ASC, rowid ASC`)
}

// ResetProcessedSessions moves every ready session back to new and clears
// its evaluation. Returns the number of sessions reset.
func (db *DB) ResetProcessedSessions() (int64, error) {
	res, err := db.conn.Exec(`UPDATE sessions SET
		status = 'new',
		evaluation_results = NULL,
		title_score = NULL, title_justification = NULL,
		description_score = NULL, description_justification = NULL,
		key_takeaways_score = NULL, key_takeaways_justification = NULL,
		given_before_score = NULL, given_before_justification = NULL,
		evaluation_score_total = NULL,
		completed_at = NULL
	WHERE status = 'ready'`)
	if err != nil {
		return 0, fmt.Errorf("resetting sessions: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) querySessions(query string, args ...any) ([]Session, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s      Session
		data   string
		status string
		crit   [4]sql.NullInt64
		just   [4]sql.NullString
		total  sql.NullInt64
		done   sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Title, &data, &status,
		&crit[0], &just[0], &crit[1], &just[1],
		&crit[2], &just[2], &crit[3], &just[3],
		&total, &s.CreatedAt, &done); err != nil {
		return nil, err
	}
	s.Data = json.RawMessage(data)
	s.Status = Status(status)
	fillEvaluation(&s, crit, just, total, done)
	return &s, nil
}

func fillEvaluation(s *Session, crit [4]sql.NullInt64, just [4]sql.NullString, total sql.NullInt64, done sql.NullString) {
	if crit[0].Valid && crit[1].Valid && crit[2].Valid && crit[3].Valid {
		s.Scores = &scores.Session{
			Title:        scores.Criterion{Score: int(crit[0].Int64), Justification: just[0].String},
			Description:  scores.Criterion{Score: int(crit[1].Int64), Justification: just[1].String},
			KeyTakeaways: scores.Criterion{Score: int(crit[2].Int64), Justification: just[2].String},
			GivenBefore:  scores.Criterion{Score: int(crit[3].Int64), Justification: just[3].String},
		}
	}
	if total.Valid {
		t := int(total.Int64)
		s.Total = &t
	}
	if done.Valid {
		s.CompletedAt = &done.String
	}
}
