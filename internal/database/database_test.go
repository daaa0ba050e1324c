package database

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lirantal/devrel-cfp-committee/internal/scores"
	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// stepClock makes every timestamp one second later than the previous one.
func stepClock(db *DB) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	db.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func testSession(id, title string, speakerIDs ...string) sessionize.Session {
	s := sessionize.Session{ID: id, Title: title, Description: "About " + title}
	for _, sp := range speakerIDs {
		s.Speakers = append(s.Speakers, sessionize.SpeakerRef{ID: sp, Name: sp})
	}
	raw, _ := json.Marshal(s)
	s.Raw = raw
	return s
}

func testSpeaker(id, name string) sessionize.Speaker {
	return sessionize.Speaker{
		ID:       id,
		FullName: name,
		Links:    json.RawMessage(`[{"url": "https://sessionize.com/` + id + `", "linkType": "Sessionize"}]`),
	}
}

func sampleScores(t, d, k, g int) scores.Session {
	return scores.Session{
		Title:        scores.Criterion{Score: t, Justification: "title"},
		Description:  scores.Criterion{Score: d, Justification: "description"},
		KeyTakeaways: scores.Criterion{Score: k, Justification: "takeaways"},
		GivenBefore:  scores.Criterion{Score: g, Justification: "given"},
	}
}

func TestUpsertSessionStartsNew(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertSession(testSession("s1", "Streams")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := db.GetSession("s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected session, got nil")
	}
	if s.Status != StatusNew {
		t.Errorf("expected status new, got %s", s.Status)
	}
	if s.Scores != nil || s.Total != nil || s.CompletedAt != nil {
		t.Error("expected no evaluation on a new session")
	}
}

func TestUpsertSessionKeepsRawPayload(t *testing.T) {
	db := openTestDB(t)
	raw := `{"id":"s1","title":"Raw",  "extra": {"kept": true}}`
	var s sessionize.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	db.UpsertSession(s)

	got, _ := db.GetSession("s1")
	if string(got.Data) != raw {
		t.Errorf("expected raw payload %s, got %s", raw, got.Data)
	}
}

func TestUpsertSessionIdempotent(t *testing.T) {
	db := openTestDB(t)
	db.UpsertSession(testSession("s1", "First"))
	db.UpsertSession(testSession("s1", "Second"))

	all, err := db.GetAllSessions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 session, got %d", len(all))
	}
	if all[0].Title != "Second" {
		t.Errorf("expected replaced title, got %s", all[0].Title)
	}
}

func TestGetSessionMissing(t *testing.T) {
	db := openTestDB(t)
	s, err := db.GetSession("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Error("expected nil for missing session")
	}
}

func TestRecordSessionEvaluation(t *testing.T) {
	db := openTestDB(t)
	db.UpsertSession(testSession("s1", "Streams"))

	if err := db.RecordSessionEvaluation("s1", sampleScores(4, 5, 3, 2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, _ := db.GetSession("s1")
	if s.Status != StatusReady {
		t.Errorf("expected status ready, got %s", s.Status)
	}
	if s.Total == nil || *s.Total != 14 {
		t.Errorf("expected total 14, got %v", s.Total)
	}
	if s.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if s.Scores == nil || s.Scores.Description.Score != 5 || s.Scores.GivenBefore.Justification != "given" {
		t.Errorf("unexpected scores: %+v", s.Scores)
	}
}

func TestRecordSessionEvaluationOverwrites(t *testing.T) {
	db := openTestDB(t)
	db.UpsertSession(testSession("s1", "Streams"))
	db.RecordSessionEvaluation("s1", sampleScores(1, 1, 1, 1))
	db.RecordSessionEvaluation("s1", sampleScores(5, 5, 5, 5))

	s, _ := db.GetSession("s1")
	if *s.Total != 20 {
		t.Errorf("expected total 20 after overwrite, got %d", *s.Total)
	}
}

func TestRecordSessionEvaluationUnknown(t *testing.T) {
	db := openTestDB(t)
	err := db.RecordSessionEvaluation("ghost", sampleScores(3, 3, 3, 3))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUnprocessedAndProcessedOrdering(t *testing.T) {
	db := openTestDB(t)
	stepClock(db)
	db.UpsertSession(testSession("a", "A"))
	db.UpsertSession(testSession("b", "B"))
	db.UpsertSession(testSession("c", "C"))

	unprocessed, err := db.GetUnprocessedSessions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unprocessed) != 3 || unprocessed[0].ID != "a" || unprocessed[2].ID != "c" {
		t.Fatalf("expected a,b,c oldest first, got %+v", unprocessed)
	}

	db.RecordSessionEvaluation("a", sampleScores(3, 3, 3, 3))
	db.RecordSessionEvaluation("c", sampleScores(3, 3, 3, 3))

	processed, err := db.GetProcessedSessions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(processed) != 2 {
		t.Fatalf("expected 2 processed, got %d", len(processed))
	}
	if processed[0].ID != "c" {
		t.Errorf("expected most recently completed first, got %s", processed[0].ID)
	}

	unprocessed, _ = db.GetUnprocessedSessions()
	if len(unprocessed) != 1 || unprocessed[0].ID != "b" {
		t.Errorf("expected only b unprocessed, got %+v", unprocessed)
	}
}

func TestResetProcessedSessions(t *testing.T) {
	db := openTestDB(t)
	db.UpsertSession(testSession("a", "A"))
	db.UpsertSession(testSession("b", "B"))
	db.UpsertSession(testSession("c", "C"))
	db.RecordSessionEvaluation("a", sampleScores(3, 3, 3, 3))
	db.RecordSessionEvaluation("b", sampleScores(4, 4, 4, 4))

	n, err := db.ResetProcessedSessions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 reset, got %d", n)
	}

	all, _ := db.GetAllSessions()
	for _, s := range all {
		if s.Status != StatusNew || s.Scores != nil || s.Total != nil || s.CompletedAt != nil {
			t.Errorf("session %s not fully reset: %+v", s.ID, s)
		}
	}

	n, _ = db.ResetProcessedSessions()
	if n != 0 {
		t.Errorf("expected 0 on second reset, got %d", n)
	}
}

func TestUpsertSpeaker(t *testing.T) {
	db := openTestDB(t)
	sp := testSpeaker("sp1", "Ada Lovelace")
	sp.IsTopSpeaker = true
	sp.Sessions = []sessionize.SpeakerSession{{ID: 101, Name: "Streams"}}
	if err := db.UpsertSpeaker(sp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.GetSpeaker("sp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.FullName != "Ada Lovelace" || !got.IsTopSpeaker {
		t.Fatalf("unexpected speaker: %+v", got)
	}
	if string(got.QuestionAnswers) != "[]" {
		t.Errorf("expected empty question answers, got %s", got.QuestionAnswers)
	}

	sp.FullName = "Ada King"
	db.UpsertSpeaker(sp)
	all, _ := db.GetAllSpeakers()
	if len(all) != 1 || all[0].FullName != "Ada King" {
		t.Errorf("expected replaced speaker, got %+v", all)
	}

	missing, err := db.GetSpeaker("nope")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", missing, err)
	}
}

func TestLinkSessionSpeaker(t *testing.T) {
	db := openTestDB(t)
	db.UpsertSession(testSession("s1", "Streams"))
	db.UpsertSpeaker(testSpeaker("sp1", "Ada"))

	linked, err := db.LinkSessionSpeaker("s1", "sp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !linked {
		t.Error("expected first link to insert")
	}

	linked, _ = db.LinkSessionSpeaker("s1", "sp1")
	if linked {
		t.Error("expected duplicate link to be a no-op")
	}

	linked, err = db.LinkSessionSpeaker("s1", "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if linked {
		t.Error("expected no link to a missing speaker")
	}

	n, _ := db.CountSessionSpeakerLinks()
	if n != 1 {
		t.Errorf("expected 1 link, got %d", n)
	}
}

func TestGetSessionSpeakers(t *testing.T) {
	db := openTestDB(t)
	db.UpsertSession(testSession("s1", "Streams"))
	db.UpsertSpeaker(testSpeaker("sp2", "Zed"))
	db.UpsertSpeaker(testSpeaker("sp1", "Ada"))
	db.LinkSessionSpeaker("s1", "sp2")
	db.LinkSessionSpeaker("s1", "sp1")

	speakers, err := db.GetSessionSpeakers("s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(speakers) != 2 {
		t.Fatalf("expected 2 speakers, got %d", len(speakers))
	}
	if speakers[0].ID != "sp2" {
		t.Errorf("expected link order, got %s first", speakers[0].ID)
	}
}

func TestGetSessionsWithSpeakers(t *testing.T) {
	db := openTestDB(t)
	stepClock(db)
	db.UpsertSession(testSession("s1", "Streams"))
	db.UpsertSession(testSession("s2", "Lonely"))
	db.UpsertSpeaker(testSpeaker("sp1", "Ada"))
	db.UpsertSpeaker(testSpeaker("sp2", "Grace"))
	db.LinkSessionSpeaker("s1", "sp1")
	db.LinkSessionSpeaker("s1", "sp2")
	db.RecordSessionEvaluation("s1", sampleScores(4, 4, 4, 4))

	rows, err := db.GetSessionsWithSpeakers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(rows))
	}
	if rows[0].ID != "s1" || len(rows[0].Speakers) != 2 {
		t.Errorf("expected s1 with 2 speakers, got %s with %d", rows[0].ID, len(rows[0].Speakers))
	}
	if rows[0].Total == nil || *rows[0].Total != 16 {
		t.Errorf("expected s1 total 16, got %v", rows[0].Total)
	}
	if rows[1].Speakers == nil || len(rows[1].Speakers) != 0 {
		t.Errorf("expected empty non-nil speaker list for s2, got %v", rows[1].Speakers)
	}
}

func TestCountSessionsBySpeaker(t *testing.T) {
	db := openTestDB(t)
	db.UpsertSession(testSession("s1", "Streams"))
	db.UpsertSession(testSession("s2", "Workers"))
	db.UpsertSpeaker(testSpeaker("sp1", "Ada"))
	db.UpsertSpeaker(testSpeaker("sp2", "Grace"))
	db.LinkSessionSpeaker("s1", "sp1")
	db.LinkSessionSpeaker("s2", "sp1")

	counts, err := db.CountSessionsBySpeaker()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["sp1"] != 2 {
		t.Errorf("expected 2 sessions for sp1, got %d", counts["sp1"])
	}
	if _, ok := counts["sp2"]; ok {
		t.Error("expected unlinked speaker to be absent")
	}
}

func TestSpeakerEvaluationLog(t *testing.T) {
	db := openTestDB(t)
	stepClock(db)
	db.UpsertSpeaker(testSpeaker("sp1", "Ada"))

	for i := 1; i <= 3; i++ {
		_, err := db.AppendSpeakerEvaluation("sp1", "https://sessionize.com/sp1", scores.Speaker{
			ExpertiseMatch:               i,
			ExpertiseMatchJustification:  "round",
			TopicsRelevance:              i,
			TopicsRelevanceJustification: "round",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history, err := db.GetSpeakerEvaluationHistory("sp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(history))
	}

	latest, err := db.GetLatestSpeakerEvaluation("sp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || latest.Scores.ExpertiseMatch != 3 {
		t.Errorf("expected latest expertise 3, got %+v", latest)
	}
	if history[0].ID != latest.ID {
		t.Error("expected history to be newest first")
	}
}

func TestLatestEvaluationTieBreaksOnID(t *testing.T) {
	db := openTestDB(t)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return fixed }
	db.UpsertSpeaker(testSpeaker("sp1", "Ada"))

	db.AppendSpeakerEvaluation("sp1", "", scores.Speaker{ExpertiseMatch: 1, TopicsRelevance: 1})
	db.AppendSpeakerEvaluation("sp1", "", scores.Speaker{ExpertiseMatch: 3, TopicsRelevance: 3})

	latest, _ := db.GetLatestSpeakerEvaluation("sp1")
	if latest.Scores.ExpertiseMatch != 3 {
		t.Errorf("expected last appended row, got %+v", latest.Scores)
	}

	all, err := db.GetLatestSpeakerEvaluations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 1 || all["sp1"].Scores.ExpertiseMatch != 3 {
		t.Errorf("unexpected latest map: %+v", all)
	}
}

func TestSpeakerEvaluationMissing(t *testing.T) {
	db := openTestDB(t)
	latest, err := db.GetLatestSpeakerEvaluation("nobody")
	if err != nil || latest != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", latest, err)
	}
	history, err := db.GetSpeakerEvaluationHistory("nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Errorf("expected empty history, got %v", history)
	}
}

func TestAppendEvaluationRequiresSpeaker(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.AppendSpeakerEvaluation("ghost", "", scores.FallbackSpeaker()); err == nil {
		t.Error("expected foreign key error for unknown speaker")
	}
}

func TestGetStatsEmpty(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalSessions != 0 || stats.TotalSpeakers != 0 {
		t.Errorf("expected empty counts, got %+v", stats)
	}
	if stats.AvgSessionTotal != nil || stats.AvgExpertiseMatch != nil {
		t.Error("expected nil averages on an empty database")
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	stepClock(db)
	db.UpsertSession(testSession("s1", "A"))
	db.UpsertSession(testSession("s2", "B"))
	db.UpsertSession(testSession("s3", "C"))
	top := testSpeaker("sp1", "Ada")
	top.IsTopSpeaker = true
	db.UpsertSpeaker(top)
	db.UpsertSpeaker(testSpeaker("sp2", "Grace"))
	db.LinkSessionSpeaker("s1", "sp1")
	db.LinkSessionSpeaker("s2", "sp1")

	db.RecordSessionEvaluation("s1", sampleScores(4, 4, 4, 4))
	db.RecordSessionEvaluation("s2", sampleScores(2, 2, 2, 2))

	db.AppendSpeakerEvaluation("sp1", "", scores.Speaker{ExpertiseMatch: 1, TopicsRelevance: 1})
	db.AppendSpeakerEvaluation("sp1", "", scores.Speaker{ExpertiseMatch: 3, TopicsRelevance: 2})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalSessions != 3 || stats.ProcessedSessions != 2 || stats.UnprocessedSessions != 1 {
		t.Errorf("unexpected session counts: %+v", stats)
	}
	if stats.TotalSpeakers != 2 || stats.SpeakersWithSessions != 1 || stats.TopSpeakers != 1 {
		t.Errorf("unexpected speaker counts: %+v", stats)
	}
	if stats.SessionSpeakerLinks != 2 {
		t.Errorf("expected 2 links, got %d", stats.SessionSpeakerLinks)
	}
	if stats.SpeakerEvaluations != 2 || stats.EvaluatedSpeakers != 1 {
		t.Errorf("unexpected evaluation counts: %+v", stats)
	}
	if stats.AvgSessionTotal == nil || *stats.AvgSessionTotal != 12 {
		t.Errorf("expected average total 12, got %v", stats.AvgSessionTotal)
	}
	if stats.AvgExpertiseMatch == nil || *stats.AvgExpertiseMatch != 3 {
		t.Errorf("expected average expertise 3 over current evaluations, got %v", stats.AvgExpertiseMatch)
	}
	if stats.AvgTopicsRelevance == nil || *stats.AvgTopicsRelevance != 2 {
		t.Errorf("expected average relevance 2, got %v", stats.AvgTopicsRelevance)
	}
}
