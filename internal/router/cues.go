package router

import (
	"context"
	"strings"
	"unicode"
)

var (
	firstPersonMarkers = []string{"my", "mine", "i", "me", "our", "ours", "we", "i'm", "i've", "myself"}
	narrativeCues      = []string{
		"story", "stories", "wrote", "written", "write", "diary", "journal", "trip",
		"document", "documents", "pdf", "notes", "uploaded", "memoir", "essay",
		"poem", "poems", "chapter", "letter",
	}
)

// CueClassifier is a deterministic Classifier: a question is personal when it
// contains both a first-person marker and a narrative cue word.
type CueClassifier struct {
	markers map[string]struct{}
	cues    map[string]struct{}
}

func NewCueClassifier() *CueClassifier {
	return &CueClassifier{
		markers: toSet(firstPersonMarkers),
		cues:    toSet(narrativeCues),
	}
}

func (c *CueClassifier) Classify(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var marker, cue bool
	for _, w := range words(question) {
		if _, ok := c.markers[w]; ok {
			marker = true
		}
		if _, ok := c.cues[w]; ok {
			cue = true
		}
	}
	return marker && cue, nil
}

func words(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}
