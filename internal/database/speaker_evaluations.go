package database

import (
	"database/sql"
	"fmt"

	"github.com/lirantal/devrel-cfp-committee/internal/scores"
)

const evaluationColumns = `id, speaker_id, profile_url,
	evaluations_expertise_match, evaluations_expertise_match_justification,
	evaluations_topics_relevance, evaluations_topics_relevance_justification, created_at`

// AppendSpeakerEvaluation adds an assessment to a speaker's evaluation log.
// Earlier rows are never touched. Returns the new row id.
func (db *DB) AppendSpeakerEvaluation(speakerID, profileURL string, a scores.Speaker) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO speaker_evaluations (speaker_id, profile_url,
			evaluations_expertise_match, evaluations_expertise_match_justification,
			evaluations_topics_relevance, evaluations_topics_relevance_justification, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		speakerID, profileURL,
		a.ExpertiseMatch, a.ExpertiseMatchJustification,
		a.TopicsRelevance, a.TopicsRelevanceJustification,
		db.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("appending evaluation for speaker %s: %w", speakerID, err)
	}
	return res.LastInsertId()
}

// GetLatestSpeakerEvaluation returns the speaker's current evaluation, or nil
// if the speaker has never been evaluated.
func (db *DB) GetLatestSpeakerEvaluation(speakerID string) (*SpeakerEvaluation, error) {
	row := db.conn.QueryRow(
		`SELECT `+evaluationColumns+` FROM speaker_evaluations
		WHERE speaker_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, speakerID,
	)
	e, err := scanEvaluation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetSpeakerEvaluationHistory returns every evaluation of a speaker, newest
// first.
func (db *DB) GetSpeakerEvaluationHistory(speakerID string) ([]SpeakerEvaluation, error) {
	rows, err := db.conn.Query(
		`SELECT `+evaluationColumns+` FROM speaker_evaluations
		WHERE speaker_id = ? ORDER BY created_at DESC, id DESC`, speakerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evals := []SpeakerEvaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, *e)
	}
	return evals, rows.Err()
}

// GetLatestSpeakerEvaluations returns the current evaluation of every
// evaluated speaker, keyed by speaker id.
func (db *DB) GetLatestSpeakerEvaluations() (map[string]SpeakerEvaluation, error) {
	rows, err := db.conn.Query(`SELECT ` + evaluationColumns + ` FROM speaker_evaluations e
		WHERE e.id = (
			SELECT e2.id FROM speaker_evaluations e2
			WHERE e2.speaker_id = e.speaker_id
			ORDER BY e2.created_at DESC, e2.id DESC LIMIT 1
		)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]SpeakerEvaluation)
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out[e.SpeakerID] = *e
	}
	return out, rows.Err()
}

func scanEvaluation(row rowScanner) (*SpeakerEvaluation, error) {
	var e SpeakerEvaluation
	if err := row.Scan(&e.ID, &e.SpeakerID, &e.ProfileURL,
		&e.Scores.ExpertiseMatch, &e.Scores.ExpertiseMatchJustification,
		&e.Scores.TopicsRelevance, &e.Scores.TopicsRelevanceJustification,
		&e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
