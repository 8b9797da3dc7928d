package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenyourself/reflection-core/internal/coerce"
	"github.com/zenyourself/reflection-core/internal/guidance"
	"github.com/zenyourself/reflection-core/internal/journal"
	"github.com/zenyourself/reflection-core/internal/model"
	"github.com/zenyourself/reflection-core/pkg/logger"
)

// scriptedGuide replays a fixed sequence of turn outcomes.
type scriptedGuide struct {
	turns []scriptedTurn
	calls int
}

type scriptedTurn struct {
	res coerce.Result
	err error
}

func (g *scriptedGuide) next() (coerce.Result, error) {
	if g.calls >= len(g.turns) {
		return coerce.Result{}, errors.New("script exhausted")
	}
	t := g.turns[g.calls]
	g.calls++
	return t.res, t.err
}

func (g *scriptedGuide) StartSession(ctx context.Context, text, locale, tz string) (coerce.Result, error) {
	return g.next()
}

func (g *scriptedGuide) NextTurn(ctx context.Context, sess model.SessionHandle, text, locale, tz string) (coerce.Result, error) {
	return g.next()
}

func (g *scriptedGuide) Closure(ctx context.Context, sess model.SessionHandle, answer, locale, tz string) (coerce.Result, error) {
	return g.next()
}

func (g *scriptedGuide) Name() string { return "scripted" }

func newTestService(guide guidance.Service, store journal.Store) *RoundService {
	if store == nil {
		store = journal.NewMemoryStore()
	}
	return NewRoundService(guide, store, logger.NewNop(), 0, "de")
}

func questionTurn(mirror, question string) scriptedTurn {
	return scriptedTurn{res: coerce.Result{
		Mirror:   mirror,
		Question: question,
		Session:  model.SessionHandle{ThreadID: "t-1", TurnIndex: 1, MaxTurns: 3},
		HasSession: true,
	}}
}

func closureTurn(mirror string) scriptedTurn {
	return scriptedTurn{res: coerce.Result{
		Mirror:       mirror,
		RecommendEnd: true,
		Session:      model.SessionHandle{ThreadID: "t-1", TurnIndex: 2, MaxTurns: 3},
		HasSession:   true,
	}}
}

func TestStartAppendsStepAndSession(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("That sounds heavy.", "What made it hardest?"),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "I had a hard day"})
	require.NoError(t, err)

	require.Len(t, r.Steps, 1)
	assert.Equal(t, "That sounds heavy.", r.Steps[0].Mirror)
	assert.Equal(t, "What made it hardest?", r.Steps[0].Question)
	assert.Equal(t, "t-1", r.Session.ThreadID)
	assert.False(t, r.Busy)
	assert.Equal(t, model.StateAwaitingUserAnswer, r.CurrentState())
}

func TestStartRejectsEmptyInput(t *testing.T) {
	svc := newTestService(&scriptedGuide{}, nil)
	_, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSubmitRecordsAnswerOnPendingStep(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("Mirror one.", "Question one?"),
		questionTurn("Mirror two.", "Question two?"),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)

	r, err = svc.Submit(context.Background(), "u-1", r.ID, "my answer")
	require.NoError(t, err)

	// The answer lands on the first step, the reply becomes a new step.
	require.Len(t, r.Steps, 2)
	assert.Equal(t, "my answer", r.Steps[0].Answer)
	assert.Empty(t, r.Steps[1].Answer)
}

func TestAtMostOneTrailingPendingStep(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		questionTurn("m2", "q2?"),
		questionTurn("m3", "q3?"),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "a1")
	require.NoError(t, err)
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "a2")
	require.NoError(t, err)

	pending := 0
	for i, s := range r.Steps {
		if s.Pending() {
			pending++
			assert.Equal(t, len(r.Steps)-1, i, "only the last step may be pending")
		}
	}
	assert.LessOrEqual(t, pending, 1)
}

func TestSaveRequiresAnswerAndMood(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
	}}
	store := journal.NewMemoryStore()
	svc := newTestService(guide, store)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)

	_, err = svc.Save(context.Background(), "u-1", r.ID)
	assert.ErrorIs(t, err, ErrMissingAnswer)

	r, _ = svc.Get("u-1", r.ID)
	assert.Empty(t, r.EntryID)
	assert.Equal(t, 0, store.Len())
}

func TestMoodRequiresClosure(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)

	_, err = svc.Mood("u-1", r.ID, &model.MoodRequest{Score: 2})
	assert.ErrorIs(t, err, ErrMoodNotAvailable)
}

func TestClosureSuppressesLaterQuestions(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		closureTurn("Du hast dir heute Raum genommen."),
		questionTurn("m3", "Noch eine Frage?"),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "a1")
	require.NoError(t, err)
	require.True(t, r.AllowClosure)

	// A later turn may still carry a question in the data; it must not be
	// presented.
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "noch etwas")
	require.NoError(t, err)

	last := r.LastStep()
	assert.Equal(t, "Noch eine Frage?", last.Question)
	assert.Empty(t, r.DisplayQuestion(last))
}

func TestFallbackStepOnGuidanceError(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		{err: errors.New("gateway timeout")},
		questionTurn("m2", "q2?"),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)

	// The failed call never surfaces as an error; a calming step appears.
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "a1")
	require.NoError(t, err)

	require.Len(t, r.Steps, 2)
	fallback := r.Steps[1]
	assert.Equal(t, guidance.FallbackMirror, fallback.Mirror)
	assert.Empty(t, fallback.Question)
	assert.Empty(t, fallback.Followups)
	assert.False(t, fallback.Risk)
	assert.False(t, r.AllowClosure)

	// The typed answer was preserved and the round accepts a fresh
	// submission.
	assert.Equal(t, "a1", r.Steps[0].Answer)
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "nochmal")
	require.NoError(t, err)
	assert.Len(t, r.Steps, 3)
}

func TestSaveIsIdempotent(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		closureTurn("Schlussspiegel."),
	}}
	store := journal.NewMemoryStore()
	svc := newTestService(guide, store)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "a1")
	require.NoError(t, err)

	_, err = svc.Mood("u-1", r.ID, &model.MoodRequest{Score: 3})
	require.NoError(t, err)

	first, err := svc.Save(context.Background(), "u-1", r.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadySaved)
	assert.NotEmpty(t, first.EntryID)

	second, err := svc.Save(context.Background(), "u-1", r.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadySaved)
	assert.Equal(t, first.EntryID, second.EntryID)

	assert.Equal(t, 1, store.Len())
}

func TestMoodChosenOnce(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		closureTurn("Schluss."),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "a1")
	require.NoError(t, err)
	require.True(t, r.MoodPrompted)

	r, err = svc.Mood("u-1", r.ID, &model.MoodRequest{Score: 1})
	require.NoError(t, err)
	assert.Equal(t, "Traurig", r.MoodLabel)

	_, err = svc.Mood("u-1", r.ID, &model.MoodRequest{Score: 4})
	assert.ErrorIs(t, err, ErrMoodAlreadySet)
}

func TestMoodScoreValidated(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		closureTurn("Schluss."),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "a1")
	require.NoError(t, err)

	_, err = svc.Mood("u-1", r.ID, &model.MoodRequest{Score: 5})
	assert.ErrorIs(t, err, ErrInvalidMoodScore)
}

func TestUndoAnswer(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)

	_, err = svc.UndoAnswer("u-1", r.ID)
	assert.ErrorIs(t, err, ErrNothingToUndo)

	// Recording and undoing an answer without a service call goes through
	// the last step directly.
	r.Steps[0].Answer = "vorläufig"
	r, err = svc.UndoAnswer("u-1", r.ID)
	require.NoError(t, err)
	assert.Empty(t, r.Steps[0].Answer)
}

func TestDeleteRemovesRoundButKeepsJournal(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		closureTurn("Schluss."),
	}}
	store := journal.NewMemoryStore()
	svc := newTestService(guide, store)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	r, err = svc.Submit(context.Background(), "u-1", r.ID, "a1")
	require.NoError(t, err)
	_, err = svc.Mood("u-1", r.ID, &model.MoodRequest{Score: 2})
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), "u-1", r.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete("u-1", r.ID))
	_, err = svc.Get("u-1", r.ID)
	assert.ErrorIs(t, err, ErrRoundNotFound)
	assert.Equal(t, 0, svc.List("u-1").Total)

	// Deleting from the active list never unsaves the journal entry.
	assert.Equal(t, 1, store.Len())
}

func TestRoundsAreScopedByUser(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)

	_, err = svc.Get("u-2", r.ID)
	assert.ErrorIs(t, err, ErrRoundNotFound)
	assert.Equal(t, 0, svc.List("u-2").Total)
}

func TestLocalSessionSynthesizedWhenServiceOmitsEcho(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		{res: coerce.Result{Mirror: "Hallo.", Question: "Wie geht es dir?"}},
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	assert.Contains(t, r.Session.ThreadID, "local-")
	assert.Equal(t, model.DefaultMaxTurns, r.Session.MaxTurns)
}

func TestClosureRejectedWhileQuestionPending(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		closureTurn("Schluss."),
	}}
	svc := newTestService(guide, nil)

	r, err := svc.Start(context.Background(), "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	require.True(t, r.Steps[0].Pending())

	_, err = svc.Closure(context.Background(), "u-1", r.ID)
	assert.ErrorIs(t, err, ErrMissingAnswer)

	// The rejected call left the round untouched.
	r, err = svc.Get("u-1", r.ID)
	require.NoError(t, err)
	require.Len(t, r.Steps, 1)
	assert.False(t, r.AllowClosure)

	// Once answered, closure goes through and no step other than the
	// newest is pending.
	r.Steps[0].Answer = "a1"
	r, err = svc.Closure(context.Background(), "u-1", r.ID)
	require.NoError(t, err)
	require.Len(t, r.Steps, 2)
	for i, s := range r.Steps {
		if s.Pending() {
			assert.Equal(t, len(r.Steps)-1, i, "only the last step may be pending")
		}
	}
	assert.True(t, r.AllowClosure)
}

// gateStore holds Persist open until released so two saves can be
// interleaved deterministically.
type gateStore struct {
	*journal.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *gateStore) Persist(ctx context.Context, entry *model.JournalEntry) error {
	s.entered <- struct{}{}
	<-s.release
	return s.MemoryStore.Persist(ctx, entry)
}

func TestOverlappingSavesAppendOnce(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		closureTurn("Schluss."),
	}}
	store := &gateStore{
		MemoryStore: journal.NewMemoryStore(),
		entered:     make(chan struct{}, 2),
		release:     make(chan struct{}),
	}
	svc := newTestService(guide, store)

	ctx := context.Background()
	r, err := svc.Start(ctx, "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	r, err = svc.Submit(ctx, "u-1", r.ID, "a1")
	require.NoError(t, err)
	_, err = svc.Mood("u-1", r.ID, &model.MoodRequest{Score: 2})
	require.NoError(t, err)

	type outcome struct {
		resp *model.SaveRoundResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := svc.Save(ctx, "u-1", r.ID)
		done <- outcome{resp, err}
	}()
	<-store.entered

	// The second save arrives while the first is still writing to the
	// store; it must not append a second entry.
	second, err := svc.Save(ctx, "u-1", r.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadySaved)

	close(store.release)
	first := <-done
	require.NoError(t, first.err)
	assert.False(t, first.resp.AlreadySaved)
	assert.Equal(t, first.resp.EntryID, second.EntryID)
	assert.Equal(t, 1, store.Len())
}

// failOnceStore rejects the first Persist and accepts the rest.
type failOnceStore struct {
	*journal.MemoryStore
	failed bool
}

func (s *failOnceStore) Persist(ctx context.Context, entry *model.JournalEntry) error {
	if !s.failed {
		s.failed = true
		return errors.New("stream unavailable")
	}
	return s.MemoryStore.Persist(ctx, entry)
}

func TestSaveRetriesAfterStoreError(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("m1", "q1?"),
		closureTurn("Schluss."),
	}}
	store := &failOnceStore{MemoryStore: journal.NewMemoryStore()}
	svc := newTestService(guide, store)

	ctx := context.Background()
	r, err := svc.Start(ctx, "u-1", &model.StartRoundRequest{Text: "seed"})
	require.NoError(t, err)
	r, err = svc.Submit(ctx, "u-1", r.ID, "a1")
	require.NoError(t, err)
	_, err = svc.Mood("u-1", r.ID, &model.MoodRequest{Score: 2})
	require.NoError(t, err)

	_, err = svc.Save(ctx, "u-1", r.ID)
	require.Error(t, err)

	// The failed save released its reservation; a retry succeeds with a
	// fresh entry.
	r, err = svc.Get("u-1", r.ID)
	require.NoError(t, err)
	assert.Empty(t, r.EntryID)

	resp, err := svc.Save(ctx, "u-1", r.ID)
	require.NoError(t, err)
	assert.False(t, resp.AlreadySaved)
	assert.Equal(t, 1, store.Len())
}

func TestEndToEndScenario(t *testing.T) {
	guide := &scriptedGuide{turns: []scriptedTurn{
		questionTurn("That sounds heavy.", "What made it hardest?"),
		closureTurn("You carried a lot today."),
	}}
	store := journal.NewMemoryStore()
	svc := newTestService(guide, store)

	ctx := context.Background()
	r, err := svc.Start(ctx, "u-1", &model.StartRoundRequest{Text: "I had a hard day"})
	require.NoError(t, err)
	require.Equal(t, "What made it hardest?", r.Steps[0].Question)

	r, err = svc.Submit(ctx, "u-1", r.ID, "Work deadlines")
	require.NoError(t, err)
	require.True(t, r.AllowClosure)

	r, err = svc.Mood("u-1", r.ID, &model.MoodRequest{Score: 1, Label: "Traurig"})
	require.NoError(t, err)

	resp, err := svc.Save(ctx, "u-1", r.ID)
	require.NoError(t, err)

	entries, err := store.List(ctx, "u-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, resp.EntryID, entry.ID)
	assert.Equal(t, "I had a hard day", entry.ThoughtText)
	assert.Equal(t, "What made it hardest?", entry.AIQuestion)
	assert.Equal(t, "Work deadlines", entry.UserAnswer)
	assert.Contains(t, entry.Tags, "mood:Traurig")
	assert.Contains(t, entry.Tags, "moodScore:1")
	assert.Contains(t, entry.Tags, "input:text")
}
