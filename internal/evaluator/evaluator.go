// Package evaluator turns a natural-language prompt into a score object
// through an LLM, rejecting any response that does not fit the schema.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/lirantal/devrel-cfp-committee/internal/llm"
	"github.com/lirantal/devrel-cfp-committee/internal/scores"
)

// ErrSchemaMismatch is returned when a response is not a conforming score
// object.
var ErrSchemaMismatch = errors.New("response does not match schema")

// Evaluator produces schema-conformant score objects. Implementations make a
// single attempt per call.
type Evaluator interface {
	EvaluateSession(ctx context.Context, prompt string) (scores.Session, error)
	AssessSpeaker(ctx context.Context, prompt string) (scores.Speaker, error)
}

const defaultMaxTokens = 1024

// LLMEvaluator implements Evaluator on top of an llm.Provider.
type LLMEvaluator struct {
	provider   llm.Provider
	conference Conference
	maxTokens  int
}

// New creates an LLM-backed evaluator. maxTokens <= 0 selects the default.
func New(provider llm.Provider, conference Conference, maxTokens int) *LLMEvaluator {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if conference.Name == "" {
		conference = DefaultConference
	}
	return &LLMEvaluator{provider: provider, conference: conference, maxTokens: maxTokens}
}

// Conference returns the event the evaluator scores for.
func (e *LLMEvaluator) Conference() Conference { return e.conference }

type criterionResponse struct {
	Score         *float64 `json:"score"`
	Justification *string  `json:"justification"`
}

type sessionResponse struct {
	Title        *criterionResponse `json:"title"`
	Description  *criterionResponse `json:"description"`
	KeyTakeaways *criterionResponse `json:"keyTakeaways"`
	GivenBefore  *criterionResponse `json:"givenBefore"`
}

type speakerResponse struct {
	ExpertiseMatch               *float64 `json:"expertiseMatch"`
	ExpertiseMatchJustification  *string  `json:"expertiseMatchJustification"`
	TopicsRelevance              *float64 `json:"topicsRelevance"`
	TopicsRelevanceJustification *string  `json:"topicsRelevanceJustification"`
}

// EvaluateSession scores a proposal on the four session criteria.
func (e *LLMEvaluator) EvaluateSession(ctx context.Context, prompt string) (scores.Session, error) {
	text, err := e.provider.Generate(ctx, SessionInstructions(e.conference), prompt, e.maxTokens)
	if err != nil {
		return scores.Session{}, err
	}

	var resp sessionResponse
	if err := llm.DecodeJSONResponse(text, &resp); err != nil {
		return scores.Session{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	var out scores.Session
	for _, f := range []struct {
		name string
		in   *criterionResponse
		out  *scores.Criterion
	}{
		{"title", resp.Title, &out.Title},
		{"description", resp.Description, &out.Description},
		{"keyTakeaways", resp.KeyTakeaways, &out.KeyTakeaways},
		{"givenBefore", resp.GivenBefore, &out.GivenBefore},
	} {
		if f.in == nil || f.in.Justification == nil {
			return scores.Session{}, fmt.Errorf("%w: missing %s", ErrSchemaMismatch, f.name)
		}
		score, err := wholeScore(f.name, f.in.Score)
		if err != nil {
			return scores.Session{}, err
		}
		*f.out = scores.Criterion{Score: score, Justification: *f.in.Justification}
	}

	if err := out.Validate(); err != nil {
		return scores.Session{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return out, nil
}

// AssessSpeaker scores a speaker's expertise match and topic relevance.
func (e *LLMEvaluator) AssessSpeaker(ctx context.Context, prompt string) (scores.Speaker, error) {
	text, err := e.provider.Generate(ctx, SpeakerInstructions(e.conference), prompt, e.maxTokens)
	if err != nil {
		return scores.Speaker{}, err
	}

	var resp speakerResponse
	if err := llm.DecodeJSONResponse(text, &resp); err != nil {
		return scores.Speaker{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if resp.ExpertiseMatchJustification == nil || resp.TopicsRelevanceJustification == nil {
		return scores.Speaker{}, fmt.Errorf("%w: missing justification", ErrSchemaMismatch)
	}

	expertise, err := wholeScore("expertiseMatch", resp.ExpertiseMatch)
	if err != nil {
		return scores.Speaker{}, err
	}
	relevance, err := wholeScore("topicsRelevance", resp.TopicsRelevance)
	if err != nil {
		return scores.Speaker{}, err
	}

	out := scores.Speaker{
		ExpertiseMatch:               expertise,
		ExpertiseMatchJustification:  *resp.ExpertiseMatchJustification,
		TopicsRelevance:              relevance,
		TopicsRelevanceJustification: *resp.TopicsRelevanceJustification,
	}
	if err := out.Validate(); err != nil {
		return scores.Speaker{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return out, nil
}

// wholeScore requires a present, integral score.
func wholeScore(name string, v *float64) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s score", ErrSchemaMismatch, name)
	}
	if *v != math.Trunc(*v) {
		return 0, fmt.Errorf("%w: %s score %v is not an integer", ErrSchemaMismatch, name, *v)
	}
	return int(*v), nil
}
