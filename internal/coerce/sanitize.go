package coerce

import (
	"strings"
)

const helperMaxRunes = 72

// Followups sanitizes raw helper-suggestion values into at most three short
// answer starters. Helpers are sentence openers the user can tap instead of
// typing; they must never themselves be questions.
func Followups(raw []any) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range raw {
		s := SanitizeHelper(asString(v))
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) >= maxFollowups {
			break
		}
	}
	return out
}

// SanitizeHelper normalizes one helper suggestion: wrapping quotes and the
// trailing question mark go, whitespace collapses, overlong text is cut at
// ~72 runes with an ellipsis, and trailing full stops are dropped.
func SanitizeHelper(s string) string {
	s = strings.TrimSpace(s)
	s = trimWrappingQuotes(s)
	s = strings.TrimRight(s, "? \t")
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > helperMaxRunes {
		s = strings.TrimSpace(string(runes[:helperMaxRunes-1])) + "…"
	}
	s = strings.TrimRight(s, ". ")
	return strings.TrimSpace(s)
}

var quoteRunes = map[rune]bool{
	'"': true, '\'': true,
	'“': true, '”': true,
	'‘': true, '’': true,
	'«': true, '»': true,
	'„': true,
}

func trimWrappingQuotes(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return quoteRunes[r]
	})
}
