// Package journal is the persistence boundary for finished rounds. The store
// itself is an external collaborator; the core only needs an idempotent
// append capability.
package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/zenyourself/reflection-core/internal/model"
)

const (
	titleWordsFromAnswer   = 10
	titleWordsFromQuestion = 12
	autoTitleMaxRunes      = 48
)

// NewEntry serializes a finished round into a journal entry. The caller
// assigns entryID exactly once; building an entry does not mutate the round.
func NewEntry(r *model.Round, entryID string, now time.Time) *model.JournalEntry {
	entry := &model.JournalEntry{
		ID:          entryID,
		UserID:      r.UserID,
		Kind:        model.EntryKindReflection,
		CreatedAt:   now.UTC(),
		Title:       deriveTitle(r),
		ThoughtText: r.UserInput,
		AIQuestion:  r.FirstQuestion(),
		UserAnswer:  r.FirstAnswer(),
		SourceRef:   "round:" + r.ID,
		Tags: []string{
			model.EntryKindReflection,
			"input:" + string(r.InputMode),
		},
	}
	if r.MoodChosen() {
		entry.Tags = append(entry.Tags,
			"mood:"+r.MoodLabel,
			fmt.Sprintf("moodScore:%d", *r.MoodScore),
		)
	}
	return entry
}

// deriveTitle prefers the user's own words: the first ~10 words of the
// answer, else the first ~12 words of the first question, else a truncated
// auto-name from the seed input.
func deriveTitle(r *model.Round) string {
	if answer := r.FirstAnswer(); answer != "" {
		return firstWords(answer, titleWordsFromAnswer)
	}
	if question := r.FirstQuestion(); question != "" {
		return firstWords(question, titleWordsFromQuestion)
	}
	return autoTitle(r.UserInput)
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "…"
}

func autoTitle(seed string) string {
	seed = strings.Join(strings.Fields(seed), " ")
	if seed == "" {
		return "Reflexion"
	}
	if runes := []rune(seed); len(runes) > autoTitleMaxRunes {
		return strings.TrimSpace(string(runes[:autoTitleMaxRunes-1])) + "…"
	}
	return seed
}
