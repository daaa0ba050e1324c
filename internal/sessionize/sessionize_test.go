package sessionize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const groupsJSON = `[
  {
    "groupId": null,
    "groupName": "All",
    "sessions": [
      {
        "id": "101",
        "title": "Streams in Node.js",
        "description": "Backpressure explained",
        "status": "Nominated",
        "questionAnswers": [
          {"id": 1, "question": "What are the key takeaways?", "questionType": "Text", "answer": "Pipe it", "sort": 1, "answerExtra": null}
        ],
        "categories": [
          {"id": 9, "name": "Have you given this talk before?", "sort": 1,
           "categoryItems": [{"id": 1, "name": "Yes"}, {"id": 2, "name": "Updated since"}]}
        ],
        "speakers": [{"id": "sp-1", "name": "Ada Lovelace"}]
      },
      {"id": "102", "title": "Signals", "description": "", "status": "Declined", "speakers": []}
    ]
  },
  {
    "groupId": "g2",
    "groupName": "Workshops",
    "sessions": [
      {"id": "201", "title": "Build a bundler", "description": "", "status": "Nominated", "speakers": []}
    ]
  }
]`

func TestDecodeBareFeed(t *testing.T) {
	feed, err := DecodeSessionFeed([]byte(groupsJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if feed.Shape != ShapeBare {
		t.Errorf("expected bare shape, got %s", feed.Shape)
	}
	sessions := feed.Sessions()
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "101" || sessions[2].ID != "201" {
		t.Errorf("unexpected order: %s, %s", sessions[0].ID, sessions[2].ID)
	}
}

func TestDecodeWrappedFeed(t *testing.T) {
	feed, err := DecodeSessionFeed([]byte(`{"sessions": ` + groupsJSON + `}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if feed.Shape != ShapeWrapped {
		t.Errorf("expected wrapped shape, got %s", feed.Shape)
	}
	if len(feed.Sessions()) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(feed.Sessions()))
	}
}

func TestDecodeMalformedFeed(t *testing.T) {
	cases := []string{
		``,
		`"sessions"`,
		`42`,
		`{"talks": []}`,
		`{"sessions": {"id": "1"}}`,
		`[{"groupName": "x", "sessions": [{"title": "no id"}]}]`,
		`[{"groupName": "x", "sessions": "nope"}]`,
	}
	for _, c := range cases {
		_, err := DecodeSessionFeed([]byte(c))
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("input %q: expected ErrMalformedInput, got %v", c, err)
		}
	}
}

func TestSessionKeepsRawPayload(t *testing.T) {
	feed, err := DecodeSessionFeed([]byte(groupsJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := feed.Sessions()[0]
	var generic map[string]any
	if err := json.Unmarshal(s.Raw, &generic); err != nil {
		t.Fatalf("raw payload is not JSON: %v", err)
	}
	if generic["title"] != "Streams in Node.js" {
		t.Errorf("unexpected raw title %v", generic["title"])
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, s.Raw); err != nil {
		t.Fatalf("compact: %v", err)
	}
	if string(out) != compact.String() {
		t.Error("expected marshal to re-emit raw bytes")
	}
}

func TestKeyTakeawaysAndGivenBefore(t *testing.T) {
	feed, _ := DecodeSessionFeed([]byte(groupsJSON))
	sessions := feed.Sessions()

	if got := sessions[0].KeyTakeaways(); got != "Pipe it" {
		t.Errorf("expected key takeaways 'Pipe it', got %q", got)
	}
	if got := sessions[0].GivenBefore(); got != "Yes, Updated since" {
		t.Errorf("expected 'Yes, Updated since', got %q", got)
	}
	if got := sessions[1].KeyTakeaways(); got != "No key takeaways provided" {
		t.Errorf("expected placeholder, got %q", got)
	}
	if got := sessions[1].GivenBefore(); got != "" {
		t.Errorf("expected empty given-before, got %q", got)
	}
}

func TestFilterByStatus(t *testing.T) {
	feed, _ := DecodeSessionFeed([]byte(`{"sessions": ` + groupsJSON + `}`))
	filtered := feed.FilterByStatus("Declined")
	if len(filtered.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(filtered.Groups))
	}
	if filtered.Sessions()[0].ID != "102" {
		t.Errorf("expected session 102, got %s", filtered.Sessions()[0].ID)
	}

	data, err := json.Marshal(filtered)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := DecodeSessionFeed(data)
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if again.Shape != ShapeWrapped || len(again.Sessions()) != 1 {
		t.Errorf("expected wrapped feed with 1 session, got %s with %d", again.Shape, len(again.Sessions()))
	}
}

func TestDecodeSpeakers(t *testing.T) {
	data := `[
	  {"id": "sp-1", "firstName": "Ada", "lastName": "Lovelace", "fullName": "Ada Lovelace",
	   "bio": "Engines", "tagLine": "Analyst", "profilePicture": "", "isTopSpeaker": true,
	   "sessions": [{"id": 101, "name": "Streams"}],
	   "links": [{"title": "Sessionize", "url": "https://sessionize.com/ada", "linkType": "Sessionize"}],
	   "questionAnswers": [], "categories": []}
	]`
	speakers, err := DecodeSpeakers([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(speakers) != 1 || !speakers[0].IsTopSpeaker {
		t.Fatalf("unexpected speakers: %+v", speakers)
	}
	if speakers[0].Sessions[0].ID != 101 {
		t.Errorf("expected session ref 101, got %d", speakers[0].Sessions[0].ID)
	}

	if _, err := DecodeSpeakers([]byte(`{"speakers": []}`)); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestProfileURL(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`[{"url": "https://x.com/ada", "linkType": "Twitter"}, {"url": "https://example.com/me", "linkType": "SESSIONIZE"}]`, "https://example.com/me"},
		{`[{"url": "https://sessionize.io/ada", "linkType": "Other"}]`, "https://sessionize.io/ada"},
		{`["https://blog.example.com", "https://sessionize.com/ada"]`, "https://sessionize.com/ada"},
		{`[{"url": "https://blog.example.com", "linkType": "Blog"}]`, ""},
		{`[]`, ""},
		{``, ""},
	}
	for _, c := range cases {
		links, err := ParseLinks(json.RawMessage(c.raw))
		if err != nil {
			t.Errorf("ParseLinks(%s): %v", c.raw, err)
			continue
		}
		if got := ProfileURL(links); got != c.want {
			t.Errorf("ProfileURL(%s) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestParseLinksMalformed(t *testing.T) {
	if _, err := ParseLinks(json.RawMessage(`{"url": "x"}`)); err == nil {
		t.Error("expected error for non-array links")
	}
	if _, err := ParseLinks(json.RawMessage(`[42]`)); err == nil {
		t.Error("expected error for numeric link")
	}
}

func TestBlogURL(t *testing.T) {
	links, _ := ParseLinks(json.RawMessage(`[{"url": "https://ada.dev", "linkType": "Blog"}]`))
	if got := BlogURL(links); got != "https://ada.dev" {
		t.Errorf("expected blog url, got %q", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	if err := os.WriteFile(path, []byte(groupsJSON), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := Load(context.Background(), nil, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "Streams in Node.js") {
		t.Error("expected file contents")
	}
}

func TestLoadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/abc/view/Sessions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(groupsJSON))
	}))
	defer srv.Close()

	data, err := Load(context.Background(), srv.Client(), srv.URL+"/api/v2/abc/view/Sessions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	feed, err := DecodeSessionFeed(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(feed.Sessions()) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(feed.Sessions()))
	}

	if _, err := Load(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
}
