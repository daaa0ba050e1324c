package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Failure is a session whose run returned an error.
type Failure struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

// Report aggregates the outputs of a batch of runs. It is safe for
// concurrent use.
type Report struct {
	mu sync.Mutex

	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	DryRun           bool      `json:"dryRun"`
	Sessions         int       `json:"sessions"`
	SessionFallbacks int       `json:"sessionFallbacks"`
	Speakers         int       `json:"speakers"`
	SpeakerFallbacks int       `json:"speakerFallbacks"`
	Discarded        int       `json:"discarded"`
	Interrupted      bool      `json:"interrupted"`
	Outputs          []*Output `json:"outputs"`
	Failures         []Failure `json:"failures"`
}

// NewReport starts a report at the given time.
func NewReport(startedAt time.Time, dryRun bool) *Report {
	return &Report{StartedAt: startedAt, DryRun: dryRun, Outputs: []*Output{}, Failures: []Failure{}}
}

// Add records a completed run.
func (r *Report) Add(out *Output) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Sessions++
	if out.SessionFallback {
		r.SessionFallbacks++
	}
	r.Speakers += len(out.Speakers)
	r.SpeakerFallbacks += out.SpeakerFallbacks()
	r.Outputs = append(r.Outputs, out)
}

// AddFailure records a run that returned an error.
func (r *Report) AddFailure(sessionID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, Failure{SessionID: sessionID, Error: err.Error()})
}

// Finish stamps the end of the batch.
func (r *Report) Finish(at time.Time, discarded int, interrupted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = at
	r.Discarded = discarded
	r.Interrupted = interrupted
}

// Summary is a one-line description of the batch.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("Processed %d sessions (%d fallback), assessed %d speakers (%d fallback), %d failed, %d left unprocessed",
		r.Sessions, r.SessionFallbacks, r.Speakers, r.SpeakerFallbacks, len(r.Failures), r.Discarded)
}

// WriteJSON writes the report to path.
func (r *Report) WriteJSON(path string) error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
