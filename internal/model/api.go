package model

// StartRoundRequest begins a new reflection round.
type StartRoundRequest struct {
	Text      string    `json:"text"`
	InputMode InputMode `json:"input_mode,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	Timezone  string    `json:"tz,omitempty"`
}

// AnswerRequest records the user's answer to the pending question.
type AnswerRequest struct {
	Text string `json:"text"`
}

// MoodRequest records the user's mood selection. Label is optional; when
// empty the default label for the score is used.
type MoodRequest struct {
	Score int    `json:"score"`
	Label string `json:"label,omitempty"`
}

// SaveRoundResponse reports the outcome of persisting a round.
type SaveRoundResponse struct {
	EntryID      string `json:"entry_id"`
	AlreadySaved bool   `json:"already_saved"`
}

// ListRoundsResponse is the response for listing active rounds.
type ListRoundsResponse struct {
	Rounds []*Round `json:"rounds"`
	Total  int      `json:"total"`
}
