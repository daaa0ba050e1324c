package scores

import "testing"

func TestSessionTotal(t *testing.T) {
	s := Session{
		Title:        Criterion{Score: 4},
		Description:  Criterion{Score: 5},
		KeyTakeaways: Criterion{Score: 3},
		GivenBefore:  Criterion{Score: 1},
	}
	if s.Total() != 13 {
		t.Errorf("expected total 13, got %d", s.Total())
	}
}

func TestSessionValidate(t *testing.T) {
	ok := FallbackSession()
	if err := ok.Validate(); err != nil {
		t.Errorf("fallback should validate: %v", err)
	}

	bad := FallbackSession()
	bad.GivenBefore.Score = 6
	if err := bad.Validate(); err == nil {
		t.Error("expected error for score 6")
	}

	bad = FallbackSession()
	bad.Title.Score = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for score 0")
	}
}

func TestFallbackSession(t *testing.T) {
	s := FallbackSession()
	if s.Total() != 12 {
		t.Errorf("expected fallback total 12, got %d", s.Total())
	}
	if s.KeyTakeaways.Justification != "Unable to parse response" {
		t.Errorf("unexpected justification %q", s.KeyTakeaways.Justification)
	}
}

func TestSpeakerValidate(t *testing.T) {
	if err := FallbackSpeaker().Validate(); err != nil {
		t.Errorf("fallback should validate: %v", err)
	}
	if err := (Speaker{ExpertiseMatch: 4, TopicsRelevance: 2}).Validate(); err == nil {
		t.Error("expected error for expertiseMatch 4")
	}
	if err := (Speaker{ExpertiseMatch: 1, TopicsRelevance: 0}).Validate(); err == nil {
		t.Error("expected error for topicsRelevance 0")
	}
}

func TestFallbackSpeaker(t *testing.T) {
	s := FallbackSpeaker()
	if s.ExpertiseMatch != 2 || s.TopicsRelevance != 2 {
		t.Errorf("expected 2/2, got %d/%d", s.ExpertiseMatch, s.TopicsRelevance)
	}
	if s.TopicsRelevanceJustification != "Unable to assess - no Sessionize profile found" {
		t.Errorf("unexpected justification %q", s.TopicsRelevanceJustification)
	}
}
