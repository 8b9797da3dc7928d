// Package model defines data structures for the reflection core.
package model

import (
	"time"
)

// InputMode says how the user entered the seed thought.
type InputMode string

const (
	InputModeText  InputMode = "text"
	InputModeVoice InputMode = "voice"
)

// MoodLabels is the five-point mood scale, indexed by score.
var MoodLabels = [5]string{"Sehr traurig", "Traurig", "Neutral", "Gut", "Sehr gut"}

// Step is one turn of guidance output within a round, plus the user's answer
// to it. A step with a non-empty question and no answer is pending; only the
// last step of a round may be pending.
type Step struct {
	Mirror    string   `json:"mirror"`
	Question  string   `json:"question"`
	TalkLines []string `json:"talk_lines,omitempty"`
	Risk      bool     `json:"risk"`
	Followups []string `json:"followups,omitempty"`
	Answer    string   `json:"answer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpectsAnswer reports whether the step carries a leading question.
func (s *Step) ExpectsAnswer() bool {
	return s.Question != ""
}

// HasAnswer reports whether the user recorded an answer on this step.
func (s *Step) HasAnswer() bool {
	return s.Answer != ""
}

// Pending reports whether the step still waits for the user's answer.
func (s *Step) Pending() bool {
	return s.ExpectsAnswer() && !s.HasAnswer()
}

// Round is one user-initiated reflection conversation.
type Round struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	InputMode InputMode `json:"input_mode"`
	UserInput string    `json:"user_input"`
	Locale    string    `json:"locale,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`

	Steps []*Step `json:"steps"`

	// Mood is captured once, after the guidance service signals closure.
	MoodScore *int   `json:"mood_score,omitempty"`
	MoodLabel string `json:"mood_label,omitempty"`

	// EntryID is set exactly once when the round is persisted to the journal.
	EntryID string `json:"entry_id,omitempty"`

	// AllowClosure gates the mood prompt; set by service closure signals.
	AllowClosure bool `json:"allow_closure"`

	// MoodPrompted guards against duplicate mood prompts on reentrant
	// completions. One presentation attempt per round.
	MoodPrompted bool `json:"mood_prompted"`

	// Session is the opaque correlation handle echoed with the service.
	Session SessionHandle `json:"session"`

	// Busy is true while a guidance call is in flight for this round.
	Busy bool `json:"-"`
}

// LastStep returns the most recent step, or nil for a fresh round.
func (r *Round) LastStep() *Step {
	if len(r.Steps) == 0 {
		return nil
	}
	return r.Steps[len(r.Steps)-1]
}

// PendingStep returns the trailing unanswered step, or nil.
func (r *Round) PendingStep() *Step {
	last := r.LastStep()
	if last != nil && last.Pending() {
		return last
	}
	return nil
}

// Answered reports whether at least one step has a recorded answer.
func (r *Round) Answered() bool {
	for _, s := range r.Steps {
		if s.HasAnswer() {
			return true
		}
	}
	return false
}

// FirstAnswer returns the first non-empty recorded answer across steps.
func (r *Round) FirstAnswer() string {
	for _, s := range r.Steps {
		if s.HasAnswer() {
			return s.Answer
		}
	}
	return ""
}

// FirstQuestion returns the first step's question, if any.
func (r *Round) FirstQuestion() string {
	for _, s := range r.Steps {
		if s.Question != "" {
			return s.Question
		}
	}
	return ""
}

// Persisted reports whether the round has been saved to the journal.
// A persisted round is frozen; further saves are no-ops.
func (r *Round) Persisted() bool {
	return r.EntryID != ""
}

// MoodChosen reports whether the user has picked a mood score.
func (r *Round) MoodChosen() bool {
	return r.MoodScore != nil
}

// DisplayQuestion returns the question the UI may present for a step. Once
// closure is active, further questions are suppressed for display while the
// underlying data keeps them.
func (r *Round) DisplayQuestion(s *Step) string {
	if r.AllowClosure {
		return ""
	}
	return s.Question
}

// State is the derived gating state of a round.
type State string

const (
	StateAwaitingServiceResponse State = "awaiting_service_response"
	StatePresentingStep          State = "presenting_step"
	StateAwaitingUserAnswer      State = "awaiting_user_answer"
	StateClosureActive           State = "closure_active"
	StateMoodChosen              State = "mood_chosen"
	StatePersisted               State = "persisted"
)

// CurrentState derives the gating state from the round's fields. The state is
// not stored; it falls out of the flags the guidance flow maintains.
func (r *Round) CurrentState() State {
	switch {
	case r.Persisted():
		return StatePersisted
	case r.MoodChosen():
		return StateMoodChosen
	case r.AllowClosure:
		return StateClosureActive
	case r.Busy:
		return StateAwaitingServiceResponse
	case r.PendingStep() != nil:
		return StateAwaitingUserAnswer
	default:
		return StatePresentingStep
	}
}
