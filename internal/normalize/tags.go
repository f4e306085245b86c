package normalize

import (
	"encoding/json"
	"strings"
)

const (
	tagPrefix = "cli_"

	TagIgnore   = "cli_ignore"
	TagHidden   = "cli_hidden"
	TagDanger   = "cli_danger"
	TagFromFile = "cli_from_file"

	// TagSeparator splits a tag from its argument, as in "cli_danger$Really?".
	TagSeparator = "$"
)

// Tag is one parsed cli_ tag.
type Tag interface {
	String() string
}

type (
	Ignore   struct{}
	Hidden   struct{}
	FromFile struct{}
	Danger   struct{ Prompt string }
	// Custom is a cli_ tag this build does not interpret. It is kept so that
	// converted tables round-trip.
	Custom struct{ Name string }
)

func (Ignore) String() string   { return TagIgnore }
func (Hidden) String() string   { return TagHidden }
func (FromFile) String() string { return TagFromFile }
func (c Custom) String() string { return c.Name }

func (d Danger) String() string {
	if d.Prompt == "" {
		return TagDanger
	}
	return TagDanger + TagSeparator + d.Prompt
}

// ParseTag parses one raw operation tag. Tags outside the cli_ namespace are
// reported as not ok.
func ParseTag(raw string) (Tag, bool) {
	if !strings.HasPrefix(raw, tagPrefix) {
		return nil, false
	}
	name, arg, _ := strings.Cut(raw, TagSeparator)
	switch name {
	case TagIgnore:
		return Ignore{}, true
	case TagHidden:
		return Hidden{}, true
	case TagFromFile:
		return FromFile{}, true
	case TagDanger:
		return Danger{Prompt: strings.TrimSpace(arg)}, true
	default:
		return Custom{Name: raw}, true
	}
}

// TagSet is the parsed cli_ subset of an operation's tags.
type TagSet []Tag

func ParseTags(raw []string) TagSet {
	var out TagSet
	for _, r := range raw {
		if t, ok := ParseTag(strings.TrimSpace(r)); ok {
			out = append(out, t)
		}
	}
	return out
}

func (ts TagSet) Ignored() bool {
	for _, t := range ts {
		if _, ok := t.(Ignore); ok {
			return true
		}
	}
	return false
}

func (ts TagSet) Hidden() bool {
	for _, t := range ts {
		if _, ok := t.(Hidden); ok {
			return true
		}
	}
	return false
}

func (ts TagSet) FromFile() bool {
	for _, t := range ts {
		if _, ok := t.(FromFile); ok {
			return true
		}
	}
	return false
}

func (ts TagSet) Danger() (Danger, bool) {
	for _, t := range ts {
		if d, ok := t.(Danger); ok {
			return d, true
		}
	}
	return Danger{}, false
}

func (ts TagSet) Strings() []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.String())
	}
	return out
}

func (ts TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.Strings())
}

func (ts *TagSet) UnmarshalJSON(b []byte) error {
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*ts = ParseTags(raw)
	return nil
}
