package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

const speakerColumns = `id, first_name, last_name, full_name, bio, tag_line, profile_picture,
	is_top_speaker, sessions, links, question_answers, categories, created_at`

// UpsertSpeaker inserts a speaker or fully replaces the stored row with the
// same id.
func (db *DB) UpsertSpeaker(sp sessionize.Speaker) error {
	sessions, err := json.Marshal(sp.Sessions)
	if err != nil {
		return fmt.Errorf("encoding sessions for speaker %s: %w", sp.ID, err)
	}
	if sp.Sessions == nil {
		sessions = []byte("[]")
	}

	_, err = db.conn.Exec(
		`INSERT INTO speakers (`+speakerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			full_name = excluded.full_name,
			bio = excluded.bio,
			tag_line = excluded.tag_line,
			profile_picture = excluded.profile_picture,
			is_top_speaker = excluded.is_top_speaker,
			sessions = excluded.sessions,
			links = excluded.links,
			question_answers = excluded.question_answers,
			categories = excluded.categories,
			created_at = excluded.created_at`,
		sp.ID, sp.FirstName, sp.LastName, sp.FullName, sp.Bio, sp.TagLine, sp.ProfilePicture,
		boolToInt(sp.IsTopSpeaker), string(sessions),
		rawOrEmpty(sp.Links), rawOrEmpty(sp.QuestionAnswers), rawOrEmpty(sp.Categories),
		db.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("upserting speaker %s: %w", sp.ID, err)
	}
	return nil
}

// GetSpeaker returns a single speaker by id, or nil if it does not exist.
func (db *DB) GetSpeaker(speakerID string) (*Speaker, error) {
	row := db.conn.QueryRow(`SELECT `+speakerColumns+` FROM speakers WHERE id = ?`, speakerID)
	sp, err := scanSpeaker(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sp, nil
}

// SpeakerExists reports whether a speaker with the given id is stored.
func (db *DB) SpeakerExists(speakerID string) (bool, error) {
	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM speakers WHERE id = ?", speakerID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetAllSpeakers returns every speaker ordered by full name.
func (db *DB) GetAllSpeakers() ([]Speaker, error) {
	rows, err := db.conn.Query(`SELECT ` + speakerColumns + ` FROM speakers ORDER BY full_name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSpeakers(rows)
}

func scanSpeakers(rows *sql.Rows) ([]Speaker, error) {
	var speakers []Speaker
	for rows.Next() {
		sp, err := scanSpeaker(rows)
		if err != nil {
			return nil, err
		}
		speakers = append(speakers, *sp)
	}
	return speakers, rows.Err()
}

func scanSpeaker(row rowScanner) (*Speaker, error) {
	var (
		sp         Speaker
		top        int
		sessions   string
		links      string
		answers    string
		categories string
	)
	if err := row.Scan(&sp.ID, &sp.FirstName, &sp.LastName, &sp.FullName, &sp.Bio, &sp.TagLine,
		&sp.ProfilePicture, &top, &sessions, &links, &answers, &categories, &sp.CreatedAt); err != nil {
		return nil, err
	}
	sp.IsTopSpeaker = top != 0
	sp.Sessions = json.RawMessage(sessions)
	sp.Links = json.RawMessage(links)
	sp.QuestionAnswers = json.RawMessage(answers)
	sp.Categories = json.RawMessage(categories)
	return &sp, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "[]"
	}
	return string(raw)
}
