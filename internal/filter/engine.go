// Package filter implements the phrase rule matching engine.
package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"tgwatch/internal/model"
)

var apostrophes = strings.NewReplacer("’", "'", "ʼ", "'", "`", "'")

// Normalize converts text to the canonical form used for rule matching:
// lower case, diacritics folded, apostrophe variants unified.
func Normalize(s string) string {
	s = strings.ToLower(s)
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	return apostrophes.Replace(s)
}

// Engine classifies post text against a fixed rule set. Build a fresh Engine
// per ingestion batch so rule edits take effect on the next cycle.
type Engine struct {
	exclude []string
	include []string
}

// NewEngine partitions and normalizes the given rules.
func NewEngine(rules []model.Rule) *Engine {
	e := &Engine{}
	for _, r := range rules {
		phrase := Normalize(strings.TrimSpace(r.Phrase))
		if phrase == "" {
			continue
		}
		if r.IsExclusion {
			e.exclude = append(e.exclude, phrase)
		} else {
			e.include = append(e.include, phrase)
		}
	}
	return e
}

// Classify reports whether text passes the rule set. Any matching exclusion
// phrase rejects the text regardless of inclusions; otherwise at least one
// inclusion phrase must match. With no inclusion rules nothing passes.
func (e *Engine) Classify(text string) bool {
	t := Normalize(text)
	for _, p := range e.exclude {
		if strings.Contains(t, p) {
			return false
		}
	}
	for _, p := range e.include {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}
