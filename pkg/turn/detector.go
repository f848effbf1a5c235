// Package turn estimates whether the user has finished their turn from the
// transcript so far.
package turn

import (
	"context"
	"strings"
	"unicode"

	"github.com/code-100-precent/LingCare/pkg/llm"
)

// Detector returns the probability that the last user message ends the turn.
type Detector interface {
	PredictEndOfTurn(ctx context.Context, history []llm.Message) (float64, error)
	// UnlikelyThreshold below which the session waits for the max endpointing delay.
	UnlikelyThreshold(language string) float64
}

var sentenceEndings = []rune{'。', '！', '？', '.', '!', '?', '…'}

// trailing words that usually mean more is coming
var continuations = map[string]struct{}{
	"and": {}, "but": {}, "or": {}, "so": {}, "because": {}, "then": {}, "um": {}, "uh": {},
	"like": {}, "if": {}, "when": {}, "that": {}, "with": {}, "the": {}, "a": {}, "my": {},
	"y": {}, "pero": {}, "porque": {}, "und": {}, "aber": {}, "et": {}, "mais": {},
	"然后": {}, "但是": {}, "因为": {}, "就是": {}, "所以": {}, "还有": {},
}

// MultilingualModel is a punctuation and lexical heuristic over the last user message.
type MultilingualModel struct {
	thresholds map[string]float64
	fallback   float64
}

func NewMultilingualModel() *MultilingualModel {
	return &MultilingualModel{
		thresholds: map[string]float64{"en": 0.25, "zh": 0.3, "es": 0.3, "de": 0.3, "fr": 0.3},
		fallback:   0.3,
	}
}

func (m *MultilingualModel) UnlikelyThreshold(language string) float64 {
	lang := strings.ToLower(language)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if t, ok := m.thresholds[lang]; ok {
		return t
	}
	return m.fallback
}

func (m *MultilingualModel) PredictEndOfTurn(ctx context.Context, history []llm.Message) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	text := lastUserText(history)
	if text == "" {
		return 0, nil
	}
	return score(text), nil
}

func lastUserText(history []llm.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == llm.RoleUser {
			return strings.TrimSpace(history[i].Content)
		}
	}
	return ""
}

func score(text string) float64 {
	runes := []rune(text)
	last := runes[len(runes)-1]
	switch {
	case last == '?' || last == '？':
		return 0.95
	case isSentenceEnding(last):
		if endsWithContinuation(strings.TrimRightFunc(text, isSentenceEndingOrSpace)) {
			return 0.4
		}
		return 0.85
	case last == ',' || last == '，' || last == '-' || last == ':':
		return 0.1
	}
	if endsWithContinuation(text) {
		return 0.05
	}
	// short unpunctuated answers ("seven", "about six hours") usually stand alone
	if len(strings.Fields(text)) <= 4 {
		return 0.6
	}
	return 0.45
}

func isSentenceEnding(r rune) bool {
	for _, e := range sentenceEndings {
		if r == e {
			return true
		}
	}
	return false
}

func isSentenceEndingOrSpace(r rune) bool {
	return isSentenceEnding(r) || unicode.IsSpace(r)
}

func endsWithContinuation(text string) bool {
	lower := strings.ToLower(text)
	for w := range continuations {
		if !isASCII(w) {
			if strings.HasSuffix(lower, w) {
				return true
			}
		}
	}
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if len(fields) == 0 {
		return false
	}
	_, ok := continuations[fields[len(fields)-1]]
	return ok
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
