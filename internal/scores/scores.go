// Package scores holds the score objects produced by evaluating sessions and
// speakers, along with the fallback values used when an evaluation fails.
package scores

import "fmt"

const (
	MinSessionScore = 1
	MaxSessionScore = 5
	MinSpeakerScore = 1
	MaxSpeakerScore = 3

	// SessionFallbackScore replaces every criterion when a session
	// evaluation cannot be obtained.
	SessionFallbackScore         = 3
	SessionFallbackJustification = "Unable to parse response"

	SpeakerFallbackScore         = 2
	SpeakerFallbackJustification = "Unable to assess - no Sessionize profile found"
)

// Criterion is a single scored dimension with its reasoning.
type Criterion struct {
	Score         int    `json:"score"`
	Justification string `json:"justification"`
}

// Session is the four-criterion evaluation of a talk proposal.
type Session struct {
	Title        Criterion `json:"title"`
	Description  Criterion `json:"description"`
	KeyTakeaways Criterion `json:"keyTakeaways"`
	GivenBefore  Criterion `json:"givenBefore"`
}

// Total is the sum of the four criterion scores.
func (s Session) Total() int {
	return s.Title.Score + s.Description.Score + s.KeyTakeaways.Score + s.GivenBefore.Score
}

// Validate checks every criterion is within the 1-5 range.
func (s Session) Validate() error {
	for _, c := range []struct {
		name string
		crit Criterion
	}{
		{"title", s.Title},
		{"description", s.Description},
		{"keyTakeaways", s.KeyTakeaways},
		{"givenBefore", s.GivenBefore},
	} {
		if c.crit.Score < MinSessionScore || c.crit.Score > MaxSessionScore {
			return fmt.Errorf("%s score %d outside %d-%d", c.name, c.crit.Score, MinSessionScore, MaxSessionScore)
		}
	}
	return nil
}

// FallbackSession returns the evaluation substituted for a failed session call.
func FallbackSession() Session {
	c := Criterion{Score: SessionFallbackScore, Justification: SessionFallbackJustification}
	return Session{Title: c, Description: c, KeyTakeaways: c, GivenBefore: c}
}

// Speaker is the assessment of a speaker's fit for the conference.
type Speaker struct {
	ExpertiseMatch               int    `json:"expertiseMatch"`
	ExpertiseMatchJustification  string `json:"expertiseMatchJustification"`
	TopicsRelevance              int    `json:"topicsRelevance"`
	TopicsRelevanceJustification string `json:"topicsRelevanceJustification"`
}

// Validate checks both scores are within the 1-3 range.
func (s Speaker) Validate() error {
	if s.ExpertiseMatch < MinSpeakerScore || s.ExpertiseMatch > MaxSpeakerScore {
		return fmt.Errorf("expertiseMatch score %d outside %d-%d", s.ExpertiseMatch, MinSpeakerScore, MaxSpeakerScore)
	}
	if s.TopicsRelevance < MinSpeakerScore || s.TopicsRelevance > MaxSpeakerScore {
		return fmt.Errorf("topicsRelevance score %d outside %d-%d", s.TopicsRelevance, MinSpeakerScore, MaxSpeakerScore)
	}
	return nil
}

// FallbackSpeaker returns the assessment used when no profile was found or
// the assessment call failed.
func FallbackSpeaker() Speaker {
	return Speaker{
		ExpertiseMatch:               SpeakerFallbackScore,
		ExpertiseMatchJustification:  SpeakerFallbackJustification,
		TopicsRelevance:              SpeakerFallbackScore,
		TopicsRelevanceJustification: SpeakerFallbackJustification,
	}
}
