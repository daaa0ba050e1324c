// Package sessionize decodes the session and speaker exports produced by
// Sessionize, the call-for-papers platform the proposals are collected on.
package sessionize

import (
	"encoding/json"
	"strings"
)

const (
	keyTakeawaysQuestion = "key takeaways"
	givenBeforeCategory  = "Have you given this talk before?"
	noKeyTakeaways       = "No key takeaways provided"
)

// QuestionAnswer is a custom CFP question and the submitter's answer.
type QuestionAnswer struct {
	ID           int     `json:"id"`
	Question     string  `json:"question"`
	QuestionType string  `json:"questionType"`
	Answer       *string `json:"answer"`
	Sort         int     `json:"sort"`
	AnswerExtra  *string `json:"answerExtra"`
}

// CategoryItem is one selected value of a category.
type CategoryItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Category is a multiple-choice CFP field.
type Category struct {
	ID            int            `json:"id"`
	Name          string         `json:"name"`
	CategoryItems []CategoryItem `json:"categoryItems"`
	Sort          int            `json:"sort"`
}

// SpeakerRef is a speaker reference embedded in a session.
type SpeakerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is a single proposal. Raw holds the exact bytes it was decoded
// from and is what gets persisted and re-encoded.
type Session struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	QuestionAnswers []QuestionAnswer `json:"questionAnswers"`
	Categories      []Category       `json:"categories"`
	Speakers        []SpeakerRef     `json:"speakers"`
	Status          string           `json:"status"`
	IsInformed      bool             `json:"isInformed"`
	IsConfirmed     bool             `json:"isConfirmed"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the session and keeps a copy of the input bytes.
func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Session(p)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the original bytes when available.
func (s Session) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	type plain Session
	return json.Marshal(plain(s))
}

// KeyTakeaways returns the answer to the first question mentioning key
// takeaways, or a placeholder when there is none.
func (s Session) KeyTakeaways() string {
	for _, qa := range s.QuestionAnswers {
		if strings.Contains(qa.Question, keyTakeawaysQuestion) {
			if qa.Answer != nil && *qa.Answer != "" {
				return *qa.Answer
			}
			break
		}
	}
	return noKeyTakeaways
}

// GivenBefore returns the selected items of the "given before" category,
// joined with ", ".
func (s Session) GivenBefore() string {
	for _, c := range s.Categories {
		if c.Name != givenBeforeCategory {
			continue
		}
		names := make([]string, 0, len(c.CategoryItems))
		for _, item := range c.CategoryItems {
			names = append(names, item.Name)
		}
		return strings.Join(names, ", ")
	}
	return ""
}

// Group is a named set of sessions, as Sessionize groups them.
type Group struct {
	GroupID   *string   `json:"groupId"`
	GroupName string    `json:"groupName"`
	Sessions  []Session `json:"sessions"`
}

// SpeakerSession is a prior-session reference on a speaker record.
type SpeakerSession struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Speaker is a speaker record from the speakers export. Links, question
// answers and categories are kept as raw JSON and parsed when needed.
type Speaker struct {
	ID              string           `json:"id"`
	FirstName       string           `json:"firstName"`
	LastName        string           `json:"lastName"`
	FullName        string           `json:"fullName"`
	Bio             string           `json:"bio"`
	TagLine         string           `json:"tagLine"`
	ProfilePicture  string           `json:"profilePicture"`
	Sessions        []SpeakerSession `json:"sessions"`
	IsTopSpeaker    bool             `json:"isTopSpeaker"`
	Links           json.RawMessage  `json:"links"`
	QuestionAnswers json.RawMessage  `json:"questionAnswers"`
	Categories      json.RawMessage  `json:"categories"`
}
