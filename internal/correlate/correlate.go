// Package correlate links stored sessions to stored speakers using the
// speaker references embedded in each session's payload.
package correlate

import (
	"encoding/json"
	"fmt"

	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/logging"
)

// Store is the subset of the database the correlator needs.
type Store interface {
	GetAllSessions() ([]database.Session, error)
	SpeakerExists(speakerID string) (bool, error)
	LinkSessionSpeaker(sessionID, speakerID string) (bool, error)
}

// Result holds the counts of a correlation run.
type Result struct {
	Sessions      int
	Linked        int
	AlreadyLinked int
	// Dropped counts references to speakers that are not stored. They are
	// skipped, not treated as errors.
	Dropped int
}

type speakerRefs struct {
	Speakers []struct {
		ID string `json:"id"`
	} `json:"speakers"`
}

// Run creates a junction row for every (session, speaker) reference whose
// speaker exists. Running it again creates no duplicates.
func Run(store Store, logger *logging.Logger) (*Result, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	sessions, err := store.GetAllSessions()
	if err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}

	result := &Result{Sessions: len(sessions)}
	for _, s := range sessions {
		var refs speakerRefs
		if err := json.Unmarshal(s.Data, &refs); err != nil {
			logger.Warn("skipping session with unreadable payload", "session_id", s.ID, "error", err)
			continue
		}

		for _, ref := range refs.Speakers {
			if ref.ID == "" {
				continue
			}
			exists, err := store.SpeakerExists(ref.ID)
			if err != nil {
				return nil, fmt.Errorf("checking speaker %s: %w", ref.ID, err)
			}
			if !exists {
				result.Dropped++
				logger.Debug("dropping reference to unknown speaker", "session_id", s.ID, "speaker_id", ref.ID)
				continue
			}

			inserted, err := store.LinkSessionSpeaker(s.ID, ref.ID)
			if err != nil {
				return nil, err
			}
			if inserted {
				result.Linked++
			} else {
				result.AlreadyLinked++
			}
		}
	}

	logger.Info("correlation complete",
		"sessions", result.Sessions,
		"linked", result.Linked,
		"already_linked", result.AlreadyLinked,
		"dropped", result.Dropped,
	)
	return result, nil
}
