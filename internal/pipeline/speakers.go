package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/taskqueue"
)

// SpeakerRunResult holds the outcome of assessing every stored speaker.
type SpeakerRunResult struct {
	RunID       string
	Speakers    []SpeakerResult
	Failed      int
	Discarded   int
	Interrupted bool
}

// Fallbacks counts speakers that received the default assessment.
func (r *SpeakerRunResult) Fallbacks() int {
	n := 0
	for _, s := range r.Speakers {
		if s.Fallback {
			n++
		}
	}
	return n
}

// SpeakerRun assesses all stored speakers, independent of sessions, through
// a task queue at the workflow's speaker concurrency. Cancelling ctx stops
// new assessments; those in flight finish and are recorded.
//
// Assessment failures already become fallback results, so an error reaching
// the queue is a store failure. The first one closes the queue and is
// returned alongside the partial result.
func (w *Workflow) SpeakerRun(ctx context.Context) (*SpeakerRunResult, error) {
	speakers, err := w.store.GetAllSpeakers()
	if err != nil {
		return nil, fmt.Errorf("loading speakers: %w", err)
	}

	result := &SpeakerRunResult{RunID: uuid.NewString()}
	done := make([]*SpeakerResult, len(speakers))
	var mu sync.Mutex
	fatal := make(chan error, 1)

	q := taskqueue.New(w.speakerConcurrency, func(ctx context.Context, i int) error {
		sp := speakers[i]
		r := run{id: result.RunID, speakerID: sp.ID}

		var res SpeakerResult
		err := w.stage(r, StageAssessSpeakers, func() (int, error) {
			var err error
			res, err = w.assess(ctx, sp)
			if res.Fallback {
				return 1, err
			}
			return 0, err
		})
		if err != nil {
			select {
			case fatal <- err:
			default:
			}
			return err
		}

		mu.Lock()
		done[i] = &res
		mu.Unlock()
		return nil
	},
		taskqueue.WithName("speakers"),
		taskqueue.WithLogger(w.logger),
		taskqueue.WithContext(ctx),
		taskqueue.WithErrorHandler(func(err error) {
			w.logger.Error("speaker assessment failed", "run_id", result.RunID, "error", err)
		}),
	)

	for i := range speakers {
		q.Push(i)
	}

	interrupted, runErr := q.Wait(ctx, fatal)
	result.Interrupted = interrupted

	stats := q.Stats()
	result.Failed = stats.Failed
	result.Discarded = stats.Discarded

	mu.Lock()
	defer mu.Unlock()
	for _, res := range done {
		if res != nil {
			result.Speakers = append(result.Speakers, *res)
		}
	}

	w.logger.Info("speaker run complete",
		"run_id", result.RunID,
		"assessed", len(result.Speakers),
		"fallbacks", result.Fallbacks(),
		"failed", result.Failed,
		"discarded", result.Discarded,
	)
	if runErr != nil {
		return result, fmt.Errorf("speaker run %s: %w", result.RunID, runErr)
	}
	return result, nil
}

var _ Store = (*database.DB)(nil)
