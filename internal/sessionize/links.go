package sessionize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Link is a speaker link. Exports carry either objects or plain URL strings.
type Link struct {
	Title    string `json:"title,omitempty"`
	URL      string `json:"url"`
	LinkType string `json:"linkType,omitempty"`
}

// UnmarshalJSON accepts an object or a bare URL string.
func (l *Link) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var u string
		if err := json.Unmarshal(trimmed, &u); err != nil {
			return err
		}
		*l = Link{URL: u}
		return nil
	}
	type plain Link
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*l = Link(p)
	return nil
}

// ParseLinks decodes a speaker's raw links. Null or empty input yields no
// links.
func ParseLinks(raw json.RawMessage) ([]Link, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var links []Link
	if err := json.Unmarshal(trimmed, &links); err != nil {
		return nil, fmt.Errorf("parsing links: %w", err)
	}
	return links, nil
}

// ProfileURL returns the first link that points at a Sessionize profile,
// or "" when there is none.
func ProfileURL(links []Link) string {
	for _, l := range links {
		if isProfileLink(l) && l.URL != "" {
			return l.URL
		}
	}
	return ""
}

func isProfileLink(l Link) bool {
	if strings.EqualFold(l.LinkType, "sessionize") {
		return true
	}
	return strings.Contains(l.URL, "sessionize.com") || strings.Contains(l.URL, "sessionize.io")
}

// BlogURL returns the first link typed as a blog, or "".
func BlogURL(links []Link) string {
	for _, l := range links {
		if strings.EqualFold(l.LinkType, "blog") && l.URL != "" {
			return l.URL
		}
	}
	return ""
}
