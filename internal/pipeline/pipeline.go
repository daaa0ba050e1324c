// Package pipeline evaluates one session end to end: it scores the
// proposal, assesses each of its speakers under a concurrency cap and
// records the results.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/evaluator"
	"github.com/lirantal/devrel-cfp-committee/internal/logging"
	"github.com/lirantal/devrel-cfp-committee/internal/scores"
	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

// DefaultSpeakerConcurrency caps parallel speaker assessments.
const DefaultSpeakerConcurrency = 2

// Store is the persistence the workflow reads from and writes to.
type Store interface {
	GetSessionSpeakers(sessionID string) ([]database.Speaker, error)
	GetAllSpeakers() ([]database.Speaker, error)
	AppendSpeakerEvaluation(speakerID, profileURL string, a scores.Speaker) (int64, error)
	RecordSessionEvaluation(sessionID string, sc scores.Session) error
}

// Enricher supplies extra speaker context for the assessment prompt. It
// returns "" when it has nothing to add.
type Enricher interface {
	Enrich(ctx context.Context, links []sessionize.Link) string
}

// SpeakerResult is the assessment of one speaker within a run.
type SpeakerResult struct {
	SpeakerID    string         `json:"speakerId"`
	FullName     string         `json:"fullName"`
	ProfileURL   string         `json:"profileUrl"`
	Assessment   scores.Speaker `json:"assessment"`
	Fallback     bool           `json:"fallback"`
	Reason       string         `json:"reason,omitempty"`
	EvaluationID int64          `json:"evaluationId,omitempty"`
}

// Output is the result of one session run.
type Output struct {
	RunID           string          `json:"runId"`
	SessionID       string          `json:"sessionId"`
	Title           string          `json:"title"`
	Evaluation      scores.Session  `json:"evaluation"`
	Total           int             `json:"total"`
	SessionFallback bool            `json:"sessionFallback"`
	Speakers        []SpeakerResult `json:"speakers"`
	Persisted       bool            `json:"persisted"`
	Duration        time.Duration   `json:"durationNs"`
}

// SpeakerFallbacks counts speakers that received the default assessment.
func (o *Output) SpeakerFallbacks() int {
	n := 0
	for _, s := range o.Speakers {
		if s.Fallback {
			n++
		}
	}
	return n
}

// Workflow drives sessions through the stages. It is safe to run several
// sessions concurrently.
type Workflow struct {
	eval               evaluator.Evaluator
	store              Store
	persist            bool
	speakerConcurrency int
	enricher           Enricher
	observers          []Observer
	conference         evaluator.Conference
	logger             *logging.Logger
	now                func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithPersistence controls whether results are written to the store.
// Without it a run only reads.
func WithPersistence(persist bool) Option {
	return func(w *Workflow) { w.persist = persist }
}

// WithSpeakerConcurrency sets the fan-out cap.
func WithSpeakerConcurrency(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.speakerConcurrency = n
		}
	}
}

// WithEnricher adds profile context to speaker prompts.
func WithEnricher(e Enricher) Option {
	return func(w *Workflow) { w.enricher = e }
}

// WithObserver subscribes observers to stage events.
func WithObserver(obs ...Observer) Option {
	return func(w *Workflow) { w.observers = append(w.observers, obs...) }
}

// WithConference sets the conference named in speaker prompts.
func WithConference(c evaluator.Conference) Option {
	return func(w *Workflow) {
		if c.Name != "" {
			w.conference = c
		}
	}
}

// WithLogger sets the logger for fallback warnings.
func WithLogger(logger *logging.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock overrides the event clock.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// New creates a workflow. Persistence is on by default.
func New(eval evaluator.Evaluator, store Store, opts ...Option) *Workflow {
	w := &Workflow{
		eval:               eval,
		store:              store,
		persist:            true,
		speakerConcurrency: DefaultSpeakerConcurrency,
		conference:         evaluator.DefaultConference,
		logger:             logging.Nop(),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type run struct {
	id        string
	sessionID string
	speakerID string
}

func (w *Workflow) emit(r run, stage Stage, kind EventKind, d time.Duration, fallbacks int, err error) {
	if len(w.observers) == 0 {
		return
	}
	e := Event{
		RunID:     r.id,
		SessionID: r.sessionID,
		SpeakerID: r.speakerID,
		Stage:     stage,
		Kind:      kind,
		At:        w.now(),
		Duration:  d,
		Fallbacks: fallbacks,
		Err:       err,
	}
	for _, o := range w.observers {
		o.Observe(e)
	}
}

// stage wraps fn with entered and completed/failed events.
func (w *Workflow) stage(r run, stage Stage, fn func() (int, error)) error {
	w.emit(r, stage, StageEntered, 0, 0, nil)
	start := w.now()
	fallbacks, err := fn()
	d := w.now().Sub(start)
	if err != nil {
		w.emit(r, stage, StageFailed, d, fallbacks, err)
		return fmt.Errorf("%s: %w", stage, err)
	}
	w.emit(r, stage, StageCompleted, d, fallbacks, nil)
	return nil
}

// Run evaluates one stored session. Evaluation failures are replaced by
// fallback scores; only store and decode failures return an error. Stage
// work ignores cancellation of ctx once started.
func (w *Workflow) Run(ctx context.Context, s database.Session) (*Output, error) {
	ctx = context.WithoutCancel(ctx)
	r := run{id: uuid.NewString(), sessionID: s.ID}
	start := w.now()
	out := &Output{RunID: r.id, SessionID: s.ID, Title: s.Title, Persisted: w.persist}

	var session sessionize.Session
	err := w.stage(r, StageIngest, func() (int, error) {
		if err := json.Unmarshal(s.Data, &session); err != nil {
			return 0, fmt.Errorf("%w: session %s: %v", sessionize.ErrMalformedInput, s.ID, err)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}

	_ = w.stage(r, StageEvaluateSession, func() (int, error) {
		ev, err := w.eval.EvaluateSession(ctx, evaluator.SessionPrompt(session))
		if err != nil {
			w.logger.Warn("session evaluation failed, using fallback scores", "session_id", s.ID, "error", err)
			out.Evaluation = scores.FallbackSession()
			out.SessionFallback = true
			return 1, nil
		}
		out.Evaluation = ev
		return 0, nil
	})
	out.Total = out.Evaluation.Total()

	var speakers []database.Speaker
	err = w.stage(r, StageFetchSpeakers, func() (int, error) {
		var err error
		speakers, err = w.store.GetSessionSpeakers(s.ID)
		return 0, err
	})
	if err != nil {
		return nil, err
	}

	err = w.stage(r, StageAssessSpeakers, func() (int, error) {
		results, err := w.fanOut(ctx, speakers)
		out.Speakers = results
		return out.SpeakerFallbacks(), err
	})
	if err != nil {
		return nil, err
	}

	err = w.stage(r, StageAggregate, func() (int, error) {
		if !w.persist {
			return 0, nil
		}
		return 0, w.store.RecordSessionEvaluation(s.ID, out.Evaluation)
	})
	if err != nil {
		return nil, err
	}

	out.Duration = w.now().Sub(start)
	return out, nil
}

// fanOut assesses speakers with at most speakerConcurrency in flight. The
// results keep the input order.
func (w *Workflow) fanOut(ctx context.Context, speakers []database.Speaker) ([]SpeakerResult, error) {
	results := make([]SpeakerResult, len(speakers))

	var g errgroup.Group
	g.SetLimit(w.speakerConcurrency)
	for i, sp := range speakers {
		i, sp := i, sp
		g.Go(func() error {
			res, err := w.assess(ctx, sp)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// assess scores one speaker and, when persisting, appends the evaluation.
func (w *Workflow) assess(ctx context.Context, sp database.Speaker) (SpeakerResult, error) {
	res := SpeakerResult{SpeakerID: sp.ID, FullName: sp.FullName}

	links, err := sessionize.ParseLinks(sp.Links)
	if err != nil {
		w.logger.Warn("unreadable speaker links, using fallback assessment", "speaker_id", sp.ID, "error", err)
	}
	profileURL := sessionize.ProfileURL(links)

	switch {
	case profileURL == "":
		res.Assessment = scores.FallbackSpeaker()
		res.Fallback = true
		res.Reason = "no Sessionize profile link"
	default:
		var extra string
		if w.enricher != nil {
			extra = w.enricher.Enrich(ctx, links)
		}
		a, err := w.eval.AssessSpeaker(ctx, evaluator.SpeakerPrompt(w.conference, profileURL, extra))
		if err != nil {
			w.logger.Warn("speaker assessment failed, using fallback", "speaker_id", sp.ID, "error", err)
			res.Assessment = scores.FallbackSpeaker()
			res.Fallback = true
			res.Reason = err.Error()
			break
		}
		res.Assessment = a
		res.ProfileURL = profileURL
	}

	if w.persist {
		id, err := w.store.AppendSpeakerEvaluation(sp.ID, res.ProfileURL, res.Assessment)
		if err != nil {
			return res, fmt.Errorf("recording assessment for speaker %s: %w", sp.ID, err)
		}
		res.EvaluationID = id
	}
	return res, nil
}
