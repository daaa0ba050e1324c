package database

import (
	"encoding/json"

	"github.com/lirantal/devrel-cfp-committee/internal/scores"
)

// Status is a session's processing state.
type Status string

const (
	StatusNew   Status = "new"
	StatusReady Status = "ready"
)

// Session is a stored proposal. Data is the payload exactly as imported.
// Scores and Total are nil until the session has been evaluated.
type Session struct {
	ID          string
	Title       string
	Data        json.RawMessage
	Status      Status
	Scores      *scores.Session
	Total       *int
	CreatedAt   string
	CompletedAt *string
}

// Speaker is a stored speaker record. The JSON columns are kept as imported.
type Speaker struct {
	ID              string
	FirstName       string
	LastName        string
	FullName        string
	Bio             string
	TagLine         string
	ProfilePicture  string
	IsTopSpeaker    bool
	Sessions        json.RawMessage
	Links           json.RawMessage
	QuestionAnswers json.RawMessage
	Categories      json.RawMessage
	CreatedAt       string
}

// SpeakerEvaluation is one row of the append-only speaker assessment log.
type SpeakerEvaluation struct {
	ID         int64
	SpeakerID  string
	ProfileURL string
	Scores     scores.Speaker
	CreatedAt  string
}

// SessionWithSpeakers is a session and the speakers linked to it.
// Speakers is empty, not nil, for sessions without links.
type SessionWithSpeakers struct {
	Session
	Speakers []Speaker
}

// Stats holds aggregate database statistics. Averages are nil when there is
// nothing to average.
type Stats struct {
	TotalSessions       int
	UnprocessedSessions int
	ProcessedSessions   int

	TotalSpeakers        int
	SpeakersWithSessions int
	TopSpeakers          int
	SessionSpeakerLinks  int

	SpeakerEvaluations int
	EvaluatedSpeakers  int

	AvgSessionTotal    *float64
	AvgTitle           *float64
	AvgDescription     *float64
	AvgKeyTakeaways    *float64
	AvgGivenBefore     *float64
	AvgExpertiseMatch  *float64
	AvgTopicsRelevance *float64
}
