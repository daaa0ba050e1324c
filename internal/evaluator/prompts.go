package evaluator

import (
	"fmt"
	"strings"

	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

// Conference describes the event proposals are evaluated for.
type Conference struct {
	Name     string
	Audience string
}

// DefaultConference is used when none is configured.
var DefaultConference = Conference{Name: "JSDev World", Audience: "JavaScript developer"}

const sessionInstructions = `You are an expert CFP evaluation agent responsible for assessing session proposals for a %s conference: "%s".

Evaluate each session proposal on the following criteria:

1. **Title** (1-5): How clear, engaging, and descriptive is the session title?
2. **Description** (1-5): How well does the description explain the session content, value, and target audience?
3. **Key Takeaways** (1-5): How valuable and actionable are the key takeaways provided?
4. **Given Before** (1-5): Is this a new talk? Was it already given at prior events? If so, did it receive any updates?

Also weigh these guidelines:
- Relevance: how relevant is this session to the conference theme and target audience?
- Technical depth: how technically sophisticated and in-depth is the proposed content?

For each criterion give an integer score from 1 (poor) to 5 (excellent) and a brief justification.

Respond with ONLY this JSON:
{
  "title": {"score": 4, "justification": "..."},
  "description": {"score": 5, "justification": "..."},
  "keyTakeaways": {"score": 5, "justification": "..."},
  "givenBefore": {"score": 2, "justification": "..."}
}`

const sessionPrompt = `Please evaluate this CFP session proposal:

## Session Title

%s

## Session Description

%s

## Session Key Takeaways

%s

## Session field: Have you given this talk before?

%s
`

const speakerInstructions = `You assess speaker profiles and their fit to the %s conference: "%s".

Use the speaker's Sessionize profile to determine their AREA OF EXPERTISE and TOPICS. Base the assessment on that information alone.

Score two dimensions with an integer from 1 (weak) to 3 (strong):
- expertiseMatch: how well the speaker's areas of expertise match the conference audience.
- topicsRelevance: how relevant the speaker's topics are to the conference theme.

Respond with ONLY this JSON:
{
  "expertiseMatch": 2,
  "expertiseMatchJustification": "...",
  "topicsRelevance": 3,
  "topicsRelevanceJustification": "..."
}`

const speakerPrompt = `Please assess this speaker's profile for the %s conference "%s".

Sessionize Profile URL: %s
`

// SessionInstructions returns the system instructions for session evaluation.
func SessionInstructions(c Conference) string {
	return fmt.Sprintf(sessionInstructions, c.Audience, c.Name)
}

// SpeakerInstructions returns the system instructions for speaker assessment.
func SpeakerInstructions(c Conference) string {
	return fmt.Sprintf(speakerInstructions, c.Audience, c.Name)
}

// SessionPrompt builds the evaluation prompt for a proposal.
func SessionPrompt(s sessionize.Session) string {
	givenBefore := s.GivenBefore()
	if givenBefore == "" {
		givenBefore = "Not specified"
	}
	return fmt.Sprintf(sessionPrompt, s.Title, s.Description, s.KeyTakeaways(), givenBefore)
}

// SpeakerPrompt builds the assessment prompt for a speaker's profile.
// profileText is optional extracted page content that is appended when set.
func SpeakerPrompt(c Conference, profileURL, profileText string) string {
	prompt := fmt.Sprintf(speakerPrompt, c.Audience, c.Name, profileURL)
	if strings.TrimSpace(profileText) == "" {
		return prompt
	}
	return prompt + "\n## Profile content\n\n" + profileText + "\n"
}
