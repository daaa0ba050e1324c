package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// LinkSessionSpeaker records that a speaker presents a session. The link is
// only created when both rows exist; an existing link is left untouched.
// Returns true if a new link was inserted.
func (db *DB) LinkSessionSpeaker(sessionID, speakerID string) (bool, error) {
	res, err := db.conn.Exec(
		`INSERT OR IGNORE INTO session_speakers (session_id, speaker_id)
		SELECT ?, ?
		WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ?)
		  AND EXISTS (SELECT 1 FROM speakers WHERE id = ?)`,
		sessionID, speakerID, sessionID, speakerID,
	)
	if err != nil {
		return false, fmt.Errorf("linking session %s to speaker %s: %w", sessionID, speakerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSessionSpeakers returns the speakers linked to a session in the order
// the links were created.
func (db *DB) GetSessionSpeakers(sessionID string) ([]Speaker, error) {
	rows, err := db.conn.Query(
		`SELECT sp.id, sp.first_name, sp.last_name, sp.full_name, sp.bio, sp.tag_line, sp.profile_picture,
			sp.is_top_speaker, sp.sessions, sp.links, sp.question_answers, sp.categories, sp.created_at
		FROM session_speakers ss
		JOIN speakers sp ON sp.id = ss.speaker_id
		WHERE ss.session_id = ?
		ORDER BY ss.rowid ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSpeakers(rows)
}

// CountSessionSpeakerLinks returns the number of rows in the junction table.
func (db *DB) CountSessionSpeakerLinks() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM session_speakers").Scan(&n)
	return n, err
}

// GetSessionsWithSpeakers returns every session joined with its speakers.
// Sessions without speakers are included with an empty speaker list.
func (db *DB) GetSessionsWithSpeakers() ([]SessionWithSpeakers, error) {
	rows, err := db.conn.Query(
		`SELECT s.id, s.title, s.session_data, s.status,
			s.title_score, s.title_justification, s.description_score, s.description_justification,
			s.key_takeaways_score, s.key_takeaways_justification, s.given_before_score, s.given_before_justification,
			s.evaluation_score_total, s.created_at, s.completed_at,
			sp.id, sp.first_name, sp.last_name, sp.full_name, sp.bio, sp.tag_line, sp.profile_picture,
			sp.is_top_speaker, sp.sessions, sp.links, sp.question_answers, sp.categories, sp.created_at
		FROM sessions s
		LEFT JOIN session_speakers ss ON s.id = ss.session_id
		LEFT JOIN speakers sp ON ss.speaker_id = sp.id
		ORDER BY s.created_at ASC, s.rowid ASC, ss.rowid ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionWithSpeakers
	index := make(map[string]int)
	for rows.Next() {
		var (
			s      Session
			data   string
			status string
			crit   [4]sql.NullInt64
			just   [4]sql.NullString
			total  sql.NullInt64
			done   sql.NullString
			sp     [12]sql.NullString
			top    sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Title, &data, &status,
			&crit[0], &just[0], &crit[1], &just[1],
			&crit[2], &just[2], &crit[3], &just[3],
			&total, &s.CreatedAt, &done,
			&sp[0], &sp[1], &sp[2], &sp[3], &sp[4], &sp[5], &sp[6],
			&top, &sp[7], &sp[8], &sp[9], &sp[10], &sp[11]); err != nil {
			return nil, err
		}

		i, seen := index[s.ID]
		if !seen {
			s.Data = json.RawMessage(data)
			s.Status = Status(status)
			fillEvaluation(&s, crit, just, total, done)
			out = append(out, SessionWithSpeakers{Session: s, Speakers: []Speaker{}})
			i = len(out) - 1
			index[s.ID] = i
		}

		if sp[0].Valid {
			out[i].Speakers = append(out[i].Speakers, Speaker{
				ID:              sp[0].String,
				FirstName:       sp[1].String,
				LastName:        sp[2].String,
				FullName:        sp[3].String,
				Bio:             sp[4].String,
				TagLine:         sp[5].String,
				ProfilePicture:  sp[6].String,
				IsTopSpeaker:    top.Int64 != 0,
				Sessions:        json.RawMessage(sp[7].String),
				Links:           json.RawMessage(sp[8].String),
				QuestionAnswers: json.RawMessage(sp[9].String),
				Categories:      json.RawMessage(sp[10].String),
				CreatedAt:       sp[11].String,
			})
		}
	}
	return out, rows.Err()
}

// CountSessionsBySpeaker returns the number of linked sessions per speaker
// id. Speakers without links are absent from the map.
func (db *DB) CountSessionsBySpeaker() (map[string]int, error) {
	rows, err := db.conn.Query(
		`SELECT speaker_id, COUNT(*) FROM session_speakers GROUP BY speaker_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
