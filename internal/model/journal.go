package model

import (
	"time"
)

// EntryKindReflection is the journal entry kind written by this service.
const EntryKindReflection = "reflection"

// JournalEntry is the record a finished round leaves behind in the journal
// store. Persisting is idempotent by ID.
type JournalEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
	Title       string    `json:"title"`
	ThoughtText string    `json:"thought_text"`
	AIQuestion  string    `json:"ai_question,omitempty"`
	UserAnswer  string    `json:"user_answer,omitempty"`
	Tags        []string  `json:"tags"`
	SourceRef   string    `json:"source_ref,omitempty"`
}

// ListJournalResponse is the response for listing journal entries.
type ListJournalResponse struct {
	Entries []JournalEntry `json:"entries"`
	Total   int            `json:"total"`
}
