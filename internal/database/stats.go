package database

import "database/sql"

// latestEvaluations selects the current row of each speaker's log.
const latestEvaluations = `SELECT * FROM speaker_evaluations e
	WHERE e.id = (
		SELECT e2.id FROM speaker_evaluations e2
		WHERE e2.speaker_id = e.speaker_id
		ORDER BY e2.created_at DESC, e2.id DESC LIMIT 1
	)`

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	counts := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM sessions", &s.TotalSessions},
		{"SELECT COUNT(*) FROM sessions WHERE status = 'new'", &s.UnprocessedSessions},
		{"SELECT COUNT(*) FROM sessions WHERE status = 'ready'", &s.ProcessedSessions},
		{"SELECT COUNT(*) FROM speakers", &s.TotalSpeakers},
		{"SELECT COUNT(DISTINCT speaker_id) FROM session_speakers", &s.SpeakersWithSessions},
		{"SELECT COUNT(*) FROM speakers WHERE is_top_speaker = 1", &s.TopSpeakers},
		{"SELECT COUNT(*) FROM session_speakers", &s.SessionSpeakerLinks},
		{"SELECT COUNT(*) FROM speaker_evaluations", &s.SpeakerEvaluations},
		{"SELECT COUNT(DISTINCT speaker_id) FROM speaker_evaluations", &s.EvaluatedSpeakers},
	}
	for _, q := range counts {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	averages := []struct {
		sql  string
		dest **float64
	}{
		{"SELECT AVG(evaluation_score_total) FROM sessions WHERE status = 'ready'", &s.AvgSessionTotal},
		{"SELECT AVG(title_score) FROM sessions WHERE status = 'ready'", &s.AvgTitle},
		{"SELECT AVG(description_score) FROM sessions WHERE status = 'ready'", &s.AvgDescription},
		{"SELECT AVG(key_takeaways_score) FROM sessions WHERE status = 'ready'", &s.AvgKeyTakeaways},
		{"SELECT AVG(given_before_score) FROM sessions WHERE status = 'ready'", &s.AvgGivenBefore},
		{"SELECT AVG(evaluations_expertise_match) FROM (" + latestEvaluations + ")", &s.AvgExpertiseMatch},
		{"SELECT AVG(evaluations_topics_relevance) FROM (" + latestEvaluations + ")", &s.AvgTopicsRelevance},
	}
	for _, q := range averages {
		var v sql.NullFloat64
		if err := db.conn.QueryRow(q.sql).Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			f := v.Float64
			*q.dest = &f
		}
	}

	return s, nil
}
