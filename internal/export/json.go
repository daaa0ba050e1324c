package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/scores"
	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

// SpeakerColumns groups speaker fields as parallel lists.
type SpeakerColumns struct {
	IDs             []string            `json:"ids"`
	Names           []string            `json:"names"`
	Taglines        []string            `json:"taglines"`
	Bios            []string            `json:"bios"`
	ProfilePictures []string            `json:"profilePictures"`
	Links           [][]sessionize.Link `json:"links"`
}

// Session is one entry of the JSON export.
type Session struct {
	SessionData          json.RawMessage `json:"sessionData"`
	Evaluation           *scores.Session `json:"evaluation"`
	EvaluationScoreTotal *int            `json:"evaluationScoreTotal"`
	Speakers             SpeakerColumns  `json:"speakers"`
}

// JSONStore is what the JSON export reads.
type JSONStore interface {
	GetSessionsWithSpeakers() ([]database.SessionWithSpeakers, error)
}

// BuildJSON assembles the export entries.
func BuildJSON(store JSONStore) ([]Session, *Summary, error) {
	rows, err := store.GetSessionsWithSpeakers()
	if err != nil {
		return nil, nil, fmt.Errorf("loading sessions: %w", err)
	}

	out := make([]Session, 0, len(rows))
	summary := &Summary{}
	for _, r := range rows {
		e := Session{
			SessionData:          r.Data,
			Evaluation:           r.Scores,
			EvaluationScoreTotal: r.Total,
			Speakers: SpeakerColumns{
				IDs:             []string{},
				Names:           []string{},
				Taglines:        []string{},
				Bios:            []string{},
				ProfilePictures: []string{},
				Links:           [][]sessionize.Link{},
			},
		}
		for _, sp := range r.Speakers {
			links, err := sessionize.ParseLinks(sp.Links)
			if err != nil || links == nil {
				links = []sessionize.Link{}
			}
			e.Speakers.IDs = append(e.Speakers.IDs, sp.ID)
			e.Speakers.Names = append(e.Speakers.Names, strings.TrimSpace(sp.FirstName+" "+sp.LastName))
			e.Speakers.Taglines = append(e.Speakers.Taglines, sp.TagLine)
			e.Speakers.Bios = append(e.Speakers.Bios, sp.Bio)
			e.Speakers.ProfilePictures = append(e.Speakers.ProfilePictures, sp.ProfilePicture)
			e.Speakers.Links = append(e.Speakers.Links, links)
		}

		summary.Total++
		if r.Scores != nil {
			summary.Evaluated++
		} else {
			summary.Unevaluated++
		}
		if len(r.Speakers) > 0 {
			summary.WithSpeaker++
		}
		out = append(out, e)
	}
	return out, summary, nil
}

// WriteJSON writes the export as an indented JSON array.
func WriteJSON(store JSONStore, w io.Writer) (*Summary, error) {
	entries, summary, err := BuildJSON(store)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("writing json: %w", err)
	}
	return summary, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]`)

// FixtureName is the file name of a fixture filtered by status, such as
// db-nominated.json.
func FixtureName(status string) string {
	return "db-" + nonSlug.ReplaceAllString(strings.ToLower(status), "-") + ".json"
}

// WriteFilteredFixture keeps the sessions of feed whose status matches and
// writes them as a single wrapped group into dir. It returns the written
// path and the kept sessions; nothing is written when none match.
func WriteFilteredFixture(feed *sessionize.Feed, status, dir string) (string, []sessionize.Session, error) {
	kept := feed.FilterByStatus(status).Sessions()
	if len(kept) == 0 {
		return "", nil, nil
	}

	out := &sessionize.Feed{
		Shape:  sessionize.ShapeWrapped,
		Groups: []sessionize.Group{{GroupName: status + " Sessions", Sessions: kept}},
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("encoding fixture: %w", err)
	}

	path := filepath.Join(dir, FixtureName(status))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("writing fixture: %w", err)
	}
	return path, kept, nil
}
