package pipeline

import (
	"time"

	"github.com/lirantal/devrel-cfp-committee/internal/logging"
)

// Stage names a workflow step. Stages run strictly in declaration order.
type Stage string

const (
	StageIngest          Stage = "ingest"
	StageEvaluateSession Stage = "evaluate-session"
	StageFetchSpeakers   Stage = "fetch-speakers"
	StageAssessSpeakers  Stage = "assess-speakers"
	StageAggregate       Stage = "aggregate"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageIngest,
	StageEvaluateSession,
	StageFetchSpeakers,
	StageAssessSpeakers,
	StageAggregate,
}

// EventKind is the transition an event reports.
type EventKind string

const (
	StageEntered   EventKind = "stage-entered"
	StageCompleted EventKind = "stage-completed"
	StageFailed    EventKind = "stage-failed"
)

// Event is emitted on every stage transition. Duration, Fallbacks and Err
// are only set on completed and failed events.
type Event struct {
	RunID     string
	SessionID string
	SpeakerID string
	Stage     Stage
	Kind      EventKind
	At        time.Time
	Duration  time.Duration
	Fallbacks int
	Err       error
}

// Observer receives stage events. Runs may execute concurrently, so
// implementations must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// LogObserver logs transitions: entered and completed at debug, failed at
// error.
func LogObserver(logger *logging.Logger) Observer {
	return ObserverFunc(func(e Event) {
		kv := []interface{}{"run_id", e.RunID, "stage", string(e.Stage)}
		if e.SessionID != "" {
			kv = append(kv, "session_id", e.SessionID)
		}
		if e.SpeakerID != "" {
			kv = append(kv, "speaker_id", e.SpeakerID)
		}

		switch e.Kind {
		case StageEntered:
			logger.Debug("stage entered", kv...)
		case StageCompleted:
			kv = append(kv, "duration", e.Duration, "fallbacks", e.Fallbacks)
			logger.Debug("stage completed", kv...)
		case StageFailed:
			kv = append(kv, "duration", e.Duration, "error", e.Err)
			logger.Error("stage failed", kv...)
		}
	})
}
