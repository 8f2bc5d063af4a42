// Package arabic provides the deterministic text transforms the search
// pipeline runs before any engine is consulted: normalization, script
// detection, quoted-phrase extraction, and the dynamic similarity
// threshold used for vector search.
package arabic

import (
	"strings"
	"unicode"
)

// Script classifies the dominant writing system of a query.
type Script string

const (
	ScriptArabic  Script = "arabic"
	ScriptLatin   Script = "latin"
	ScriptNumeric Script = "numeric"
)

// Query is the parsed, immutable form of a user query.
type Query struct {
	Raw             string
	Normalized      string
	Script          Script
	HasQuotedPhrase bool
	Tokens          []string
	Phrases         []string
}

// ParseQuery normalizes the raw text and derives every per-query signal
// the orchestrator needs.
func ParseQuery(raw string) Query {
	norm := Normalize(raw)
	phrases := QuotedPhrases(raw)
	return Query{
		Raw:             raw,
		Normalized:      norm,
		Script:          DetectScript(raw),
		HasQuotedPhrase: len(phrases) > 0,
		Tokens:          strings.Fields(norm),
		Phrases:         phrases,
	}
}

// Normalize strips Arabic diacritics, folds alef variants to bare alef,
// drops standalone hamza, folds alef maqsura to yeh and teh marbuta to
// heh, and collapses whitespace. Idempotent.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x064B && r <= 0x065F: // harakat, tanween, sukun, shadda
			continue
		case r == 0x0670: // superscript alef
			continue
		case r == 0x0621: // standalone hamza
			continue
		case r == 0x0622 || r == 0x0623 || r == 0x0625 || r == 0x0671:
			b.WriteRune(0x0627) // bare alef
		case r == 0x0649:
			b.WriteRune(0x064A) // yeh
		case r == 0x0629:
			b.WriteRune(0x0647) // heh
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// DetectScript returns arabic if any Arabic codepoint is present, numeric
// if every character is an ASCII digit, latin otherwise.
func DetectScript(s string) Script {
	trimmed := strings.TrimSpace(s)
	allDigits := trimmed != ""
	for _, r := range trimmed {
		if isArabicRune(r) {
			return ScriptArabic
		}
		if r < '0' || r > '9' {
			allDigits = false
		}
	}
	if allDigits {
		return ScriptNumeric
	}
	return ScriptLatin
}

func isArabicRune(r rune) bool {
	switch {
	case r >= 0x0600 && r <= 0x06FF:
		return true
	case r >= 0x0750 && r <= 0x077F: // Arabic Supplement
		return true
	case r >= 0x08A0 && r <= 0x08FF: // Arabic Extended-A
		return true
	case r >= 0xFB50 && r <= 0xFDFF: // presentation forms A
		return true
	case r >= 0xFE70 && r <= 0xFEFF: // presentation forms B
		return true
	}
	return false
}

// quotePairs maps an opening quote rune to its accepted closers.
var quotePairs = map[rune][]rune{
	'"': {'"'},
	'«': {'»'},
	'„': {'“', '”'},
	'“': {'”'},
}

// QuotedPhrases extracts the contents of matched quote pairs. A span only
// counts as a phrase when it holds at least two tokens; single quoted
// words behave like ordinary terms.
func QuotedPhrases(s string) []string {
	var phrases []string
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		closers, ok := quotePairs[runes[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(runes); j++ {
			if !runeIn(closers, runes[j]) {
				continue
			}
			content := strings.TrimSpace(string(runes[i+1 : j]))
			if len(strings.Fields(content)) >= 2 {
				phrases = append(phrases, content)
			}
			i = j
			break
		}
	}
	return phrases
}

func runeIn(rs []rune, r rune) bool {
	for _, c := range rs {
		if c == r {
			return true
		}
	}
	return false
}

// SimilarityThreshold computes the effective vector-score cutoff for a
// query. Short queries embed poorly, so the cutoff rises as the query
// shrinks; it never drops below the caller's base threshold.
func SimilarityThreshold(base float64, normalized string) float64 {
	chars := 0
	for _, r := range normalized {
		if !unicode.IsSpace(r) {
			chars++
		}
	}
	words := len(strings.Fields(normalized))
	eff := chars
	if words == 1 && eff > 6 {
		eff = 6
	}
	var lookup float64
	switch {
	case eff <= 3:
		lookup = 0.55
	case eff <= 6:
		lookup = 0.40
	case eff <= 12:
		lookup = 0.30
	default:
		lookup = base
	}
	if lookup > base {
		return lookup
	}
	return base
}

// SkipSemantic reports whether the dense-vector branch should be skipped:
// quoted-phrase queries want exact matching, and queries shorter than
// four non-space characters embed into noise.
func SkipSemantic(q Query) bool {
	if q.HasQuotedPhrase {
		return true
	}
	n := 0
	for _, r := range q.Normalized {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n < 4
}
