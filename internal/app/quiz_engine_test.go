package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"edutest-quiz-service/internal/app"
	"edutest-quiz-service/internal/domain"
	"edutest-quiz-service/internal/infra/bank"
	"edutest-quiz-service/internal/infra/memory"
)

func engineQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:          "c1",
			Topic:       "Capitals",
			Type:        domain.ArchetypeSingle,
			Prompt:      "What is the capital of France?",
			Options:     []string{"Paris", "Rome", "Madrid"},
			Answer:      "Paris",
			Explanation: "Paris has been the capital since 987.",
		},
		{
			ID:      "c2",
			Topic:   "Capitals",
			Type:    domain.ArchetypeMulti,
			Prompt:  "Which of these are capitals?",
			Options: []string{"Berlin", "Munich", "Oslo", "Bergen"},
			Answers: []string{"Berlin", "Oslo"},
		},
		{
			ID:         "c3",
			Topic:      "Capitals",
			Type:       domain.ArchetypeMatch,
			Prompt:     "Match the country to its capital",
			MatchLeft:  []string{"France", "Italy", "Spain"},
			MatchRight: []string{"Paris", "Rome", "Madrid"},
			Pairs: []domain.MatchPair{
				{Left: 0, Right: 0},
				{Left: 1, Right: 1},
				{Left: 2, Right: 2},
			},
		},
	}
}

// countingResults wraps the in-memory store to assert finalization happens
// exactly once.
type countingResults struct {
	*memory.ResultStore
	finishCalls int
	pointCalls  int
}

func (c *countingResults) FinishSession(ctx context.Context, sessionID int64, score int, details []domain.TranscriptEntry) error {
	c.finishCalls++
	return c.ResultStore.FinishSession(ctx, sessionID, score, details)
}

func (c *countingResults) AddPoints(ctx context.Context, userID int64, points int, topic string) error {
	c.pointCalls++
	return c.ResultStore.AddPoints(ctx, userID, points, topic)
}

func newTestEngine(t *testing.T, now func() time.Time) (*app.QuizEngine, *countingResults) {
	t.Helper()
	results := &countingResults{ResultStore: memory.NewResultStore()}
	if _, err := results.EnsureUser(context.Background(), 42, "Test User"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := results.SetApproved(context.Background(), 42, true); err != nil {
		t.Fatalf("approve user: %v", err)
	}
	selector := app.NewSelectorWithRand(rand.New(rand.NewSource(11)))
	engine := app.NewQuizEngineWithClock(bank.NewStatic(engineQuestions()), memory.NewSessionStore(), results, selector, now)
	return engine, results
}

// correctSubmission builds the right answer for whatever the directive shows,
// independent of shuffle order. Multi questions are answered by toggling each
// expected option first, then confirming.
func correctSubmission(t *testing.T, directive domain.RenderDirective) []domain.Submission {
	t.Helper()
	switch directive.Type {
	case domain.ArchetypeSingle:
		return []domain.Submission{domain.OptionSubmission("Paris")}
	case domain.ArchetypeMulti:
		return []domain.Submission{
			domain.ToggleSubmission("Berlin"),
			domain.ToggleSubmission("Oslo"),
			domain.ConfirmSubmission(),
		}
	case domain.ArchetypeMatch:
		return []domain.Submission{domain.MatchSubmission(matchAnswerFor(t, directive))}
	}
	t.Fatalf("unexpected question type %q", directive.Type)
	return nil
}

// matchAnswerFor reads the displayed right column and emits "A-n" tokens that
// pair each country with its capital as shown on screen.
func matchAnswerFor(t *testing.T, directive domain.RenderDirective) string {
	t.Helper()
	capitals := map[string]string{"France": "Paris", "Italy": "Rome", "Spain": "Madrid"}
	var tokens []string
	for i, country := range directive.MatchLeft {
		want := capitals[country]
		pos := -1
		for j, shown := range directive.MatchRight {
			if shown == want {
				pos = j
			}
		}
		if pos < 0 {
			t.Fatalf("capital %q missing from displayed column %v", want, directive.MatchRight)
		}
		tokens = append(tokens, fmt.Sprintf("%c-%d", 'A'+i, pos+1))
	}
	return strings.Join(tokens, ",")
}

func TestFullSessionAllCorrect(t *testing.T) {
	ctx := context.Background()
	engine, results := newTestEngine(t, time.Now)

	directive, err := engine.StartSession(ctx, 42, "Capitals", 3, 0)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if directive.Index != 1 || directive.Total != 3 {
		t.Fatalf("expected question 1/3, got %d/%d", directive.Index, directive.Total)
	}
	if directive.SecondsLeft != 0 {
		t.Fatalf("untimed session reported %d seconds left", directive.SecondsLeft)
	}

	for answered := 0; answered < 3; answered++ {
		var adv app.Advance
		for _, sub := range correctSubmission(t, directive) {
			adv, err = engine.SubmitAnswer(ctx, 42, sub)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if adv.Kind == app.AdvanceRender {
				directive = *adv.Directive
			}
		}
		if adv.Feedback == nil || !adv.Feedback.Correct {
			t.Fatalf("expected correct feedback on question %d, got %+v", answered+1, adv.Feedback)
		}
		switch adv.Kind {
		case app.AdvanceNext:
			directive = *adv.Directive
		case app.AdvanceFinished:
			if answered != 2 {
				t.Fatalf("finished after %d answers", answered+1)
			}
			if adv.Summary.Score != 3 || adv.Summary.Total != 3 {
				t.Fatalf("expected summary 3/3, got %d/%d", adv.Summary.Score, adv.Summary.Total)
			}
		default:
			t.Fatalf("unexpected advance kind %d", adv.Kind)
		}
	}

	if results.finishCalls != 1 || results.pointCalls != 1 {
		t.Fatalf("expected exactly one finalization, got finish=%d points=%d", results.finishCalls, results.pointCalls)
	}
	score, total, details, finished, ok := results.Session(1)
	if !ok || !finished {
		t.Fatalf("session row not finalized")
	}
	if score != 3 || total != 3 || len(details) != 3 {
		t.Fatalf("persisted %d/%d with %d entries", score, total, len(details))
	}
	points, err := results.UserPoints(ctx, 42)
	if err != nil || points != 3 {
		t.Fatalf("expected 3 points, got %d (%v)", points, err)
	}

	// The session is gone; further input is ignored and nothing is persisted twice.
	adv, err := engine.SubmitAnswer(ctx, 42, domain.OptionSubmission("Paris"))
	if err != nil {
		t.Fatalf("submit after finish: %v", err)
	}
	if adv.Kind != app.AdvanceNone {
		t.Fatalf("expected no-op after finish, got kind %d", adv.Kind)
	}
	if results.finishCalls != 1 {
		t.Fatalf("session finalized twice")
	}
}

func TestStartSessionGates(t *testing.T) {
	ctx := context.Background()
	engine, results := newTestEngine(t, time.Now)

	if _, err := engine.StartSession(ctx, 42, "Astronomy", 5, 0); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}

	if err := results.SetApproved(ctx, 42, false); err != nil {
		t.Fatalf("revoke approval: %v", err)
	}
	if _, err := engine.StartSession(ctx, 42, "Capitals", 3, 0); !errors.Is(err, domain.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}

	if _, err := engine.StartSession(ctx, 7, "Capitals", 3, 0); !errors.Is(err, domain.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved for unknown user, got %v", err)
	}
}

func TestSubmitWithoutSession(t *testing.T) {
	engine, results := newTestEngine(t, time.Now)

	adv, err := engine.SubmitAnswer(context.Background(), 42, domain.OptionSubmission("Paris"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if adv.Kind != app.AdvanceNone {
		t.Fatalf("expected no-op, got kind %d", adv.Kind)
	}
	if results.finishCalls != 0 {
		t.Fatalf("finalized a session that never existed")
	}
}

func TestWrongAnswerFeedback(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, time.Now)

	directive, err := engine.StartSession(ctx, 42, "Capitals", 3, 0)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	// Walk until the single-answer question comes up, answering the rest
	// correctly along the way.
	for directive.Type != domain.ArchetypeSingle {
		var adv app.Advance
		for _, sub := range correctSubmission(t, directive) {
			adv, err = engine.SubmitAnswer(ctx, 42, sub)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if adv.Kind == app.AdvanceRender {
				directive = *adv.Directive
			}
		}
		if adv.Kind != app.AdvanceNext {
			t.Fatalf("ran out of questions before the single-answer one")
		}
		directive = *adv.Directive
	}

	adv, err := engine.SubmitAnswer(ctx, 42, domain.OptionSubmission("Rome"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if adv.Feedback == nil || adv.Feedback.Correct {
		t.Fatalf("expected incorrect feedback, got %+v", adv.Feedback)
	}
	if len(adv.Feedback.Expected) != 1 || adv.Feedback.Expected[0] != "Paris" {
		t.Fatalf("expected canonical answer in feedback, got %v", adv.Feedback.Expected)
	}
	if adv.Feedback.Explanation == "" {
		t.Fatalf("expected explanation to be carried through")
	}
}

func TestMultiToggleIsIdempotentPerOption(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, time.Now)

	directive, err := engine.StartSession(ctx, 42, "Capitals", 3, 0)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	directive = walkToType(ctx, t, engine, directive, domain.ArchetypeMulti)

	// Toggle on, then off again: the selection must end up empty.
	for _, opt := range []string{"Munich", "Munich"} {
		adv, err := engine.SubmitAnswer(ctx, 42, domain.ToggleSubmission(opt))
		if err != nil {
			t.Fatalf("toggle: %v", err)
		}
		if adv.Kind != app.AdvanceRender {
			t.Fatalf("expected re-render on toggle, got kind %d", adv.Kind)
		}
		directive = *adv.Directive
	}
	if len(directive.Selected) != 0 {
		t.Fatalf("expected empty selection after double toggle, got %v", directive.Selected)
	}

	// A strict subset of the expected options scores as incorrect.
	if _, err := engine.SubmitAnswer(ctx, 42, domain.ToggleSubmission("Berlin")); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	adv, err := engine.SubmitAnswer(ctx, 42, domain.ConfirmSubmission())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if adv.Feedback == nil || adv.Feedback.Correct {
		t.Fatalf("expected subset to be incorrect, got %+v", adv.Feedback)
	}
}

func TestMatchRetryKeepsSession(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, time.Now)

	directive, err := engine.StartSession(ctx, 42, "Capitals", 3, 0)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	directive = walkToType(ctx, t, engine, directive, domain.ArchetypeMatch)

	adv, err := engine.SubmitAnswer(ctx, 42, domain.MatchSubmission("A-9,B-banana"))
	if err != nil {
		t.Fatalf("submit malformed: %v", err)
	}
	if adv.Kind != app.AdvanceRetry {
		t.Fatalf("expected retry, got kind %d", adv.Kind)
	}

	// Same question, same displayed order: the previously computed answer
	// still scores as correct.
	adv, err = engine.SubmitAnswer(ctx, 42, domain.MatchSubmission(matchAnswerFor(t, directive)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if adv.Feedback == nil || !adv.Feedback.Correct {
		t.Fatalf("expected correct after retry, got %+v", adv.Feedback)
	}
}

func TestDeadlineFinishesWithoutScoring(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	engine, results := newTestEngine(t, func() time.Time { return current })

	directive, err := engine.StartSession(ctx, 42, "Capitals", 3, 1)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if directive.SecondsLeft != 60 {
		t.Fatalf("expected 60 seconds left, got %d", directive.SecondsLeft)
	}

	current = current.Add(2 * time.Minute)
	adv, err := engine.SubmitAnswer(ctx, 42, domain.OptionSubmission("Paris"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if adv.Kind != app.AdvanceFinished {
		t.Fatalf("expected finish on expiry, got kind %d", adv.Kind)
	}
	if adv.Feedback != nil {
		t.Fatalf("late answer must not be scored, got feedback %+v", adv.Feedback)
	}
	if adv.Summary.Score != 0 {
		t.Fatalf("expected score 0, got %d", adv.Summary.Score)
	}
	if results.finishCalls != 1 {
		t.Fatalf("expected one finalization, got %d", results.finishCalls)
	}
}

func TestRestartDiscardsActiveSession(t *testing.T) {
	ctx := context.Background()
	engine, results := newTestEngine(t, time.Now)

	if _, err := engine.StartSession(ctx, 42, "Capitals", 3, 0); err != nil {
		t.Fatalf("start first session: %v", err)
	}
	directive, err := engine.StartSession(ctx, 42, "Capitals", 1, 0)
	if err != nil {
		t.Fatalf("start second session: %v", err)
	}
	if directive.Total != 1 {
		t.Fatalf("expected fresh 1-question session, got total %d", directive.Total)
	}

	var adv app.Advance
	for _, sub := range correctSubmission(t, directive) {
		adv, err = engine.SubmitAnswer(ctx, 42, sub)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if adv.Kind == app.AdvanceRender {
			directive = *adv.Directive
		}
	}
	if adv.Kind != app.AdvanceFinished {
		t.Fatalf("expected finish, got kind %d", adv.Kind)
	}

	// Only the second session row is finalized; the abandoned one stays open.
	if results.finishCalls != 1 {
		t.Fatalf("expected one finalization, got %d", results.finishCalls)
	}
	if _, _, _, finished, ok := results.Session(1); !ok || finished {
		t.Fatalf("abandoned session row unexpectedly finalized")
	}
	if _, _, _, finished, ok := results.Session(2); !ok || !finished {
		t.Fatalf("second session row not finalized")
	}
}

func TestAbandonDropsSession(t *testing.T) {
	ctx := context.Background()
	engine, results := newTestEngine(t, time.Now)

	if _, err := engine.StartSession(ctx, 42, "Capitals", 3, 0); err != nil {
		t.Fatalf("start session: %v", err)
	}
	engine.Abandon(42)

	adv, err := engine.SubmitAnswer(ctx, 42, domain.OptionSubmission("Paris"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if adv.Kind != app.AdvanceNone {
		t.Fatalf("expected no-op after abandon, got kind %d", adv.Kind)
	}
	if results.finishCalls != 0 {
		t.Fatalf("abandon must not finalize, got %d calls", results.finishCalls)
	}
}

// walkToType answers questions correctly until one of the wanted type is the
// current question.
func walkToType(ctx context.Context, t *testing.T, engine *app.QuizEngine, directive domain.RenderDirective, want domain.Archetype) domain.RenderDirective {
	t.Helper()
	for directive.Type != want {
		var adv app.Advance
		var err error
		for _, sub := range correctSubmission(t, directive) {
			adv, err = engine.SubmitAnswer(ctx, 42, sub)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if adv.Kind == app.AdvanceRender {
				directive = *adv.Directive
			}
		}
		if adv.Kind != app.AdvanceNext {
			t.Fatalf("ran out of questions before reaching %q", want)
		}
		directive = *adv.Directive
	}
	return directive
}
