// Package service provides the turn controller that drives reflection rounds.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenyourself/reflection-core/internal/coerce"
	"github.com/zenyourself/reflection-core/internal/guidance"
	"github.com/zenyourself/reflection-core/internal/journal"
	"github.com/zenyourself/reflection-core/internal/model"
	"github.com/zenyourself/reflection-core/pkg/logger"
	"github.com/zenyourself/reflection-core/pkg/metrics"
)

// Advisory errors. These are preconditions the user can remedy, not faults;
// handlers report them as short messages, never as 5xx.
var (
	ErrRoundNotFound    = errors.New("round not found")
	ErrRoundBusy        = errors.New("a reply is already on its way")
	ErrRoundFrozen      = errors.New("round is already saved")
	ErrEmptyInput       = errors.New("input text is empty")
	ErrMissingAnswer    = errors.New("missing answer")
	ErrMissingMood      = errors.New("missing mood")
	ErrMoodNotAvailable = errors.New("mood prompt is not active")
	ErrMoodAlreadySet   = errors.New("mood is already chosen")
	ErrInvalidMoodScore = errors.New("mood score must be between 0 and 4")
	ErrNothingToUndo    = errors.New("no answer to undo")
)

// DefaultGuidanceTimeout bounds one guidance call.
const DefaultGuidanceTimeout = 18 * time.Second

// RoundService is the turn controller: it owns the active round list, drives
// guidance calls, and enforces the round gating invariants. All round
// mutation happens here, in direct response to a user action or a completed
// guidance call.
type RoundService struct {
	guide   guidance.Service
	store   journal.Store
	logger  *logger.Logger
	timeout time.Duration
	locale  string

	mu     sync.RWMutex
	rounds map[string]*model.Round
	order  []string
}

// NewRoundService creates a round service.
func NewRoundService(guide guidance.Service, store journal.Store, log *logger.Logger, timeout time.Duration, locale string) *RoundService {
	if timeout <= 0 {
		timeout = DefaultGuidanceTimeout
	}
	return &RoundService{
		guide:   guide,
		store:   store,
		logger:  log,
		timeout: timeout,
		locale:  locale,
		rounds:  make(map[string]*model.Round),
	}
}

// Start creates a new round from the user's seed thought and fetches the
// first turn.
func (s *RoundService) Start(ctx context.Context, userID string, req *model.StartRoundRequest) (*model.Round, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	mode := req.InputMode
	if mode != model.InputModeVoice {
		mode = model.InputModeText
	}
	locale := req.Locale
	if locale == "" {
		locale = s.locale
	}

	now := time.Now()
	r := &model.Round{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		CreatedAt: now,
		InputMode: mode,
		UserInput: text,
		Locale:    locale,
		Timezone:  req.Timezone,
		Busy:      true,
	}

	s.mu.Lock()
	s.rounds[r.ID] = r
	s.order = append(s.order, r.ID)
	s.mu.Unlock()

	metrics.RoundsTotal.WithLabelValues(string(mode)).Inc()

	s.runTurn(ctx, r, func(callCtx context.Context) (coerce.Result, error) {
		return s.guide.StartSession(callCtx, text, locale, r.Timezone)
	})
	return s.Get(userID, r.ID)
}

// Submit records the user's answer and fetches the next turn. When the round
// has a pending question, the answer lands on that step first; a submission
// on a round without a pending question (after a fallback turn, for example)
// is sent to the service as-is.
func (s *RoundService) Submit(ctx context.Context, userID, roundID, text string) (*model.Round, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	s.mu.Lock()
	r, err := s.lookupLocked(userID, roundID)
	if err == nil {
		switch {
		case r.Persisted():
			err = ErrRoundFrozen
		case r.Busy:
			err = ErrRoundBusy
		}
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if pending := r.PendingStep(); pending != nil {
		// The answer is recorded on the last step, never on a new one.
		pending.Answer = text
	}
	r.Busy = true
	sess := r.Session
	locale, tz := r.Locale, r.Timezone
	s.mu.Unlock()

	s.runTurn(ctx, r, func(callCtx context.Context) (coerce.Result, error) {
		return s.guide.NextTurn(callCtx, sess, text, locale, tz)
	})
	return s.Get(userID, roundID)
}

// Closure asks the service for the closing mirror and mood-intro turn. A
// pending question must be answered (or undone and resubmitted) first, so
// that no step other than the newest is ever left pending.
func (s *RoundService) Closure(ctx context.Context, userID, roundID string) (*model.Round, error) {
	s.mu.Lock()
	r, err := s.lookupLocked(userID, roundID)
	if err == nil {
		switch {
		case r.Persisted():
			err = ErrRoundFrozen
		case r.Busy:
			err = ErrRoundBusy
		case r.PendingStep() != nil:
			err = ErrMissingAnswer
		}
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	r.Busy = true
	sess := r.Session
	answer := r.FirstAnswer()
	locale, tz := r.Locale, r.Timezone
	s.mu.Unlock()

	s.runTurn(ctx, r, func(callCtx context.Context) (coerce.Result, error) {
		return s.guide.Closure(callCtx, sess, answer, locale, tz)
	})
	return s.Get(userID, roundID)
}

// UndoAnswer clears the answer on the last step so the user can rephrase
// before the next submission.
func (s *RoundService) UndoAnswer(userID, roundID string) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookupLocked(userID, roundID)
	if err != nil {
		return nil, err
	}
	if r.Persisted() {
		return nil, ErrRoundFrozen
	}
	if r.Busy {
		return nil, ErrRoundBusy
	}
	last := r.LastStep()
	if last == nil || !last.HasAnswer() {
		return nil, ErrNothingToUndo
	}
	last.Answer = ""
	return r, nil
}

// Mood records the user's mood selection. Only one selection is accepted per
// round, and only once the service has signaled closure.
func (s *RoundService) Mood(userID, roundID string, req *model.MoodRequest) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookupLocked(userID, roundID)
	if err != nil {
		return nil, err
	}
	if r.Persisted() {
		return nil, ErrRoundFrozen
	}
	if !r.AllowClosure {
		return nil, ErrMoodNotAvailable
	}
	if r.MoodChosen() {
		return nil, ErrMoodAlreadySet
	}
	if req.Score < 0 || req.Score > 4 {
		return nil, ErrInvalidMoodScore
	}

	score := req.Score
	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = model.MoodLabels[score]
	}
	r.MoodScore = &score
	r.MoodLabel = label
	return r, nil
}

// Save persists the round to the journal. Saving is idempotent: a second
// call after success reports the same entry ID as already saved.
func (s *RoundService) Save(ctx context.Context, userID, roundID string) (*model.SaveRoundResponse, error) {
	s.mu.Lock()
	r, err := s.lookupLocked(userID, roundID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if r.Persisted() {
		entryID := r.EntryID
		s.mu.Unlock()
		return &model.SaveRoundResponse{EntryID: entryID, AlreadySaved: true}, nil
	}
	if !r.Answered() {
		s.mu.Unlock()
		return nil, ErrMissingAnswer
	}
	if !r.MoodChosen() {
		s.mu.Unlock()
		return nil, ErrMissingMood
	}

	// The entry ID is reserved under the lock: an overlapping save observes
	// Persisted and reports already saved with the same ID instead of
	// appending a second entry. The reservation is rolled back if the store
	// rejects the entry, so the round stays savable.
	entry := journal.NewEntry(r, uuid.Must(uuid.NewV7()).String(), time.Now())
	r.EntryID = entry.ID
	s.mu.Unlock()

	if err := s.store.Persist(ctx, entry); err != nil {
		s.mu.Lock()
		if r.EntryID == entry.ID {
			r.EntryID = ""
		}
		s.mu.Unlock()
		return nil, err
	}

	metrics.JournalEntriesTotal.Inc()
	s.logger.Info("round saved",
		zap.String("round_id", roundID),
		zap.String("entry_id", entry.ID),
	)
	return &model.SaveRoundResponse{EntryID: entry.ID, AlreadySaved: false}, nil
}

// Delete removes the round from the active list. Already-persisted journal
// entries are untouched; this is a list operation, not an unsave.
func (s *RoundService) Delete(userID, roundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookupLocked(userID, roundID); err != nil {
		return err
	}
	delete(s.rounds, roundID)
	for i, id := range s.order {
		if id == roundID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get retrieves a round by ID.
func (s *RoundService) Get(userID, roundID string) (*model.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(userID, roundID)
}

// List returns the user's active rounds, newest first.
func (s *RoundService) List(userID string) *model.ListRoundsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rounds []*model.Round
	for i := len(s.order) - 1; i >= 0; i-- {
		if r, ok := s.rounds[s.order[i]]; ok && r.UserID == userID {
			rounds = append(rounds, r)
		}
	}
	return &model.ListRoundsResponse{Rounds: rounds, Total: len(rounds)}
}

func (s *RoundService) lookupLocked(userID, roundID string) (*model.Round, error) {
	r, ok := s.rounds[roundID]
	if !ok || r.UserID != userID {
		return nil, ErrRoundNotFound
	}
	return r, nil
}

// runTurn performs one guidance call with the configured timeout and applies
// the outcome. A failed call appends the calming fallback step instead of
// surfacing an error; the round stays open for a fresh submission.
func (s *RoundService) runTurn(ctx context.Context, r *model.Round, call func(context.Context) (coerce.Result, error)) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := call(callCtx)
	metrics.GuidanceDuration.WithLabelValues(s.guide.Name(), statusLabel(err)).
		Observe(time.Since(start).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	// The round may have been deleted while the call was in flight; the
	// completion is discarded rather than mutating a dead round.
	if _, ok := s.rounds[r.ID]; !ok {
		return
	}
	r.Busy = false

	now := time.Now()
	if err != nil {
		s.logger.Warn("guidance call failed, appending fallback step",
			zap.String("round_id", r.ID),
			zap.Error(err),
		)
		metrics.FallbackStepsTotal.Inc()
		r.Steps = append(r.Steps, guidance.FallbackStep(now))
		if r.Session.IsZero() {
			r.Session = model.NewLocalSessionHandle(now)
		}
		return
	}

	s.applyTurnLocked(r, res, now)
}

// applyTurnLocked appends the coerced turn as a new step and updates the
// session handle and closure gate. Caller holds the lock.
func (s *RoundService) applyTurnLocked(r *model.Round, res coerce.Result, now time.Time) {
	pendingBefore := r.PendingStep() != nil

	step := &model.Step{
		Mirror:    res.Mirror,
		Question:  res.Question,
		TalkLines: res.TalkLines,
		Risk:      res.Risk,
		Followups: res.Followups,
		CreatedAt: now,
	}
	r.Steps = append(r.Steps, step)

	// The service's session echo replaces the local handle wholesale; a
	// local handle is synthesized only when the service omits one.
	if res.HasSession {
		r.Session = res.Session
	} else if r.Session.IsZero() {
		r.Session = model.NewLocalSessionHandle(now)
	}

	if res.Risk {
		metrics.RiskTurnsTotal.Inc()
	}
	metrics.TurnsTotal.WithLabelValues(s.guide.Name()).Inc()

	if res.Closure() && !pendingBefore && !r.MoodChosen() {
		r.AllowClosure = true
		// One mood prompt per round, even on reentrant completions.
		r.MoodPrompted = true
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
