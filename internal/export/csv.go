// Package export writes stored sessions out as CSV or JSON and produces
// filtered fixture feeds.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

// Columns is the CSV header, in order.
var Columns = []string{
	"id", "title", "description", "speakers", "categories", "questionAnswers",
	"status", "title_score", "title_justification", "description_score", "description_justification",
	"key_takeaways_score", "key_takeaways_justification", "given_before_score", "given_before_justification",
	"evaluation_score_total", "created_at", "completed_at",
}

var newlines = regexp.MustCompile(`\r?\n`)

// EscapeCSVField collapses line breaks to single spaces, doubles quotes and
// quotes the field when it contains a comma, quote or newline.
func EscapeCSVField(field string) string {
	cleaned := newlines.ReplaceAllString(field, " ")
	cleaned = strings.ReplaceAll(cleaned, `"`, `""`)
	if strings.ContainsAny(cleaned, ",\"\n") {
		return `"` + cleaned + `"`
	}
	return cleaned
}

// UnescapeCSVField reverses the quoting applied by EscapeCSVField. Collapsed
// line breaks are not restored.
func UnescapeCSVField(field string) string {
	if len(field) >= 2 && strings.HasPrefix(field, `"`) && strings.HasSuffix(field, `"`) {
		field = field[1 : len(field)-1]
	}
	return strings.ReplaceAll(field, `""`, `"`)
}

// Summary describes what an export wrote.
type Summary struct {
	Total       int
	Evaluated   int
	Unevaluated int
	WithSpeaker int
}

// CSVStore is what the CSV export reads.
type CSVStore interface {
	GetProcessedSessions() ([]database.Session, error)
	GetUnprocessedSessions() ([]database.Session, error)
}

// WriteCSV writes processed sessions followed by unprocessed ones, one row
// per session with the columns in Columns.
func WriteCSV(store CSVStore, w io.Writer) (*Summary, error) {
	processed, err := store.GetProcessedSessions()
	if err != nil {
		return nil, fmt.Errorf("loading processed sessions: %w", err)
	}
	unprocessed, err := store.GetUnprocessedSessions()
	if err != nil {
		return nil, fmt.Errorf("loading unprocessed sessions: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(strings.Join(Columns, ",") + "\n")

	summary := &Summary{Evaluated: len(processed), Unevaluated: len(unprocessed)}
	for _, s := range append(processed, unprocessed...) {
		row, err := csvRow(s)
		if err != nil {
			return nil, err
		}
		bw.WriteString(strings.Join(row, ",") + "\n")
		summary.Total++
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("writing csv: %w", err)
	}
	return summary, nil
}

func csvRow(s database.Session) ([]string, error) {
	var data sessionize.Session
	if err := json.Unmarshal(s.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", s.ID, err)
	}

	row := []string{
		EscapeCSVField(data.ID),
		EscapeCSVField(data.Title),
		EscapeCSVField(data.Description),
		EscapeCSVField(formatSpeakers(data.Speakers)),
		EscapeCSVField(formatCategories(data.Categories)),
		EscapeCSVField(formatQuestionAnswers(data.QuestionAnswers)),
		EscapeCSVField(string(s.Status)),
	}

	if s.Scores != nil {
		for _, c := range []struct {
			score int
			just  string
		}{
			{s.Scores.Title.Score, s.Scores.Title.Justification},
			{s.Scores.Description.Score, s.Scores.Description.Justification},
			{s.Scores.KeyTakeaways.Score, s.Scores.KeyTakeaways.Justification},
			{s.Scores.GivenBefore.Score, s.Scores.GivenBefore.Justification},
		} {
			row = append(row, strconv.Itoa(c.score), EscapeCSVField(c.just))
		}
	} else {
		row = append(row, "", "", "", "", "", "", "", "")
	}

	total := ""
	if s.Total != nil {
		total = strconv.Itoa(*s.Total)
	}
	completed := ""
	if s.CompletedAt != nil {
		completed = *s.CompletedAt
	}
	row = append(row, total, EscapeCSVField(s.CreatedAt), EscapeCSVField(completed))
	return row, nil
}

func formatSpeakers(refs []sessionize.SpeakerRef) string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	return strings.Join(names, "; ")
}

func formatCategories(cats []sessionize.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		items := make([]string, len(c.CategoryItems))
		for j, item := range c.CategoryItems {
			items[j] = item.Name
		}
		parts[i] = c.Name + ": " + strings.Join(items, ", ")
	}
	return strings.Join(parts, "; ")
}

func formatQuestionAnswers(qas []sessionize.QuestionAnswer) string {
	parts := make([]string, len(qas))
	for i, qa := range qas {
		answer := "No answer"
		if qa.Answer != nil && *qa.Answer != "" {
			answer = *qa.Answer
		}
		parts[i] = qa.Question + ": " + answer
	}
	return strings.Join(parts, "; ")
}
