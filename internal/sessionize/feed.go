package sessionize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedInput is returned when an import file matches none of the
// accepted shapes.
var ErrMalformedInput = errors.New("malformed input")

// Shape identifies which of the accepted session export layouts a feed used.
type Shape int

const (
	// ShapeWrapped is {"sessions": [group, ...]}.
	ShapeWrapped Shape = iota + 1
	// ShapeBare is [group, ...].
	ShapeBare
)

func (s Shape) String() string {
	switch s {
	case ShapeWrapped:
		return "wrapped"
	case ShapeBare:
		return "bare"
	default:
		return "unknown"
	}
}

// Feed is a decoded session export.
type Feed struct {
	Shape  Shape
	Groups []Group
}

// Sessions flattens the sessions of every group, preserving order.
func (f *Feed) Sessions() []Session {
	var all []Session
	for _, g := range f.Groups {
		all = append(all, g.Sessions...)
	}
	return all
}

// MarshalJSON encodes the feed back into the shape it was read from.
func (f *Feed) MarshalJSON() ([]byte, error) {
	groups := f.Groups
	if groups == nil {
		groups = []Group{}
	}
	if f.Shape == ShapeWrapped {
		return json.Marshal(struct {
			Sessions []Group `json:"sessions"`
		}{groups})
	}
	return json.Marshal(groups)
}

// FilterByStatus returns a feed of the same shape keeping only sessions
// whose Sessionize status equals status. Groups left empty are dropped.
func (f *Feed) FilterByStatus(status string) *Feed {
	out := &Feed{Shape: f.Shape}
	for _, g := range f.Groups {
		var kept []Session
		for _, s := range g.Sessions {
			if s.Status == status {
				kept = append(kept, s)
			}
		}
		if len(kept) > 0 {
			out.Groups = append(out.Groups, Group{GroupID: g.GroupID, GroupName: g.GroupName, Sessions: kept})
		}
	}
	return out
}

// DecodeSessionFeed accepts either a wrapper object with a "sessions" array
// of groups or a bare array of groups.
func DecodeSessionFeed(data []byte) (*Feed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedInput)
	}

	switch trimmed[0] {
	case '{':
		var wrapper struct {
			Sessions json.RawMessage `json:"sessions"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		raw := bytes.TrimSpace(wrapper.Sessions)
		if len(raw) == 0 || raw[0] != '[' {
			return nil, fmt.Errorf("%w: expected array or object with sessions property", ErrMalformedInput)
		}
		groups, err := decodeGroups(raw)
		if err != nil {
			return nil, err
		}
		return &Feed{Shape: ShapeWrapped, Groups: groups}, nil
	case '[':
		groups, err := decodeGroups(trimmed)
		if err != nil {
			return nil, err
		}
		return &Feed{Shape: ShapeBare, Groups: groups}, nil
	default:
		return nil, fmt.Errorf("%w: expected array or object with sessions property", ErrMalformedInput)
	}
}

func decodeGroups(data []byte) ([]Group, error) {
	var groups []Group
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("%w: decoding session groups: %v", ErrMalformedInput, err)
	}
	for gi, g := range groups {
		for si, s := range g.Sessions {
			if s.ID == "" {
				return nil, fmt.Errorf("%w: group %d session %d has no id", ErrMalformedInput, gi, si)
			}
		}
	}
	return groups, nil
}

// DecodeSpeakers decodes a flat array of speaker records.
func DecodeSpeakers(data []byte) ([]Speaker, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected an array of speakers", ErrMalformedInput)
	}
	var speakers []Speaker
	if err := json.Unmarshal(trimmed, &speakers); err != nil {
		return nil, fmt.Errorf("%w: decoding speakers: %v", ErrMalformedInput, err)
	}
	for i, sp := range speakers {
		if sp.ID == "" {
			return nil, fmt.Errorf("%w: speaker %d has no id", ErrMalformedInput, i)
		}
	}
	return speakers, nil
}
