package triage

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Strategy names the extraction step that produced a draft.
type Strategy string

const (
	StrategyFenced   Strategy = "fenced"
	StrategyEmbedded Strategy = "embedded"
	StrategyRaw      Strategy = "raw"
)

// Draft is the loosely typed object pulled out of a model response. Fields
// that were absent or of the wrong JSON type are left zero.
type Draft struct {
	Summary       string
	Priority      string
	HelpfulNotes  string
	RelatedSkills []string
}

// ParseOutcome is either a parsed draft or unparseable.
type ParseOutcome struct {
	Draft    Draft
	Strategy Strategy
	ok       bool
}

// Parsed reports whether a JSON object was found.
func (o ParseOutcome) Parsed() bool { return o.ok }

var fencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

// Parse extracts the first JSON object from raw model output. It tries a
// fenced code block, then any decodable object embedded in the text, then
// the whole trimmed response.
func Parse(raw string) ParseOutcome {
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		if obj, ok := decodeObject(strings.TrimSpace(m[1])); ok {
			return ParseOutcome{Draft: draftFrom(obj), Strategy: StrategyFenced, ok: true}
		}
	}

	if obj, ok := firstEmbeddedObject(raw); ok {
		return ParseOutcome{Draft: draftFrom(obj), Strategy: StrategyEmbedded, ok: true}
	}

	if obj, ok := decodeObject(strings.TrimSpace(raw)); ok {
		return ParseOutcome{Draft: draftFrom(obj), Strategy: StrategyRaw, ok: true}
	}
	return ParseOutcome{}
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// firstEmbeddedObject decodes from each '{' in turn and returns the first
// complete object. Trailing text after the object is ignored.
func firstEmbeddedObject(s string) (map[string]any, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		var obj map[string]any
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		if err := dec.Decode(&obj); err == nil && obj != nil {
			return obj, true
		}
	}
	return nil, false
}

func draftFrom(obj map[string]any) Draft {
	d := Draft{
		Summary:      stringField(obj, "summary"),
		Priority:     stringField(obj, "priority"),
		HelpfulNotes: stringField(obj, "helpfulNotes"),
	}
	if list, ok := obj["relatedSkills"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				d.RelatedSkills = append(d.RelatedSkills, s)
			}
		}
	}
	return d
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
