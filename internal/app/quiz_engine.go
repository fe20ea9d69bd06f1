package app

import (
	"context"
	"fmt"
	"time"

	"edutest-quiz-service/internal/domain"
)

// SessionStore abstracts how active sessions are kept (in-memory, Redis, etc).
// Exactly one session per user: Put replaces any session in progress.
type SessionStore interface {
	Put(userID int64, session *Session)
	Get(userID int64) (*Session, bool)
	Delete(userID int64)
}

// BankRepository loads question bank content (from cache/backing store).
type BankRepository interface {
	Questions(ctx context.Context) ([]domain.Question, error)
	Topics(ctx context.Context) ([]domain.TopicCount, error)
}

// ResultRepository is the persistence collaborator for approvals, session
// rows, and points. Its failures are not retried here; they propagate to the
// caller.
type ResultRepository interface {
	IsApproved(ctx context.Context, userID int64) (bool, error)
	StartSession(ctx context.Context, userID int64, topic string, total, timerMinutes int) (int64, error)
	FinishSession(ctx context.Context, sessionID int64, score int, details []domain.TranscriptEntry) error
	AddPoints(ctx context.Context, userID int64, points int, topic string) error
}

// AdvanceKind tells the transport what happened to the session after a
// submission.
type AdvanceKind int

const (
	// AdvanceNone means there was nothing to do: no active session, or the
	// submission kind does not apply to the current question. Silent no-op.
	AdvanceNone AdvanceKind = iota
	// AdvanceNext carries feedback for the answered question plus the next
	// question's render directive.
	AdvanceNext
	// AdvanceRender carries an updated directive for the same question
	// (multi toggle); nothing was evaluated.
	AdvanceRender
	// AdvanceRetry means the match answer did not parse; re-prompt the same
	// question. No transcript entry was written.
	AdvanceRetry
	// AdvanceFinished means the session is over; Summary is set. Feedback is
	// set too unless the session expired before the answer was evaluated.
	AdvanceFinished
)

// Advance is the engine's reply to a submission.
type Advance struct {
	Kind      AdvanceKind
	Feedback  *domain.Feedback
	Directive *domain.RenderDirective
	Summary   *domain.Summary
}

// QuizEngine drives per-user quiz sessions: selection, question sequencing,
// deadline enforcement, scoring, and finalization.
type QuizEngine struct {
	bank     BankRepository
	sessions SessionStore
	results  ResultRepository
	selector *Selector
	now      func() time.Time
}

func NewQuizEngine(bank BankRepository, sessions SessionStore, results ResultRepository) *QuizEngine {
	return NewQuizEngineWithClock(bank, sessions, results, NewSelector(), time.Now)
}

// NewQuizEngineWithClock allows deterministic shuffles and timestamps in tests.
func NewQuizEngineWithClock(bank BankRepository, sessions SessionStore, results ResultRepository, selector *Selector, now func() time.Time) *QuizEngine {
	return &QuizEngine{
		bank:     bank,
		sessions: sessions,
		results:  results,
		selector: selector,
		now:      now,
	}
}

// Topics lists available topics with question counts.
func (e *QuizEngine) Topics(ctx context.Context) ([]domain.TopicCount, error) {
	return e.bank.Topics(ctx)
}

// StartSession creates a session of up to n questions for an approved user
// and returns the first question's render directive. Any session already in
// progress for the user is silently discarded without persisting its
// transcript. With timerMinutes > 0 the whole session gets an absolute
// deadline; it is checked lazily on each subsequent interaction.
func (e *QuizEngine) StartSession(ctx context.Context, userID int64, topic string, n, timerMinutes int) (domain.RenderDirective, error) {
	approved, err := e.results.IsApproved(ctx, userID)
	if err != nil {
		return domain.RenderDirective{}, fmt.Errorf("check approval: %w", err)
	}
	if !approved {
		return domain.RenderDirective{}, domain.ErrNotApproved
	}

	all, err := e.bank.Questions(ctx)
	if err != nil {
		return domain.RenderDirective{}, fmt.Errorf("load bank: %w", err)
	}
	questions := e.selector.Select(all, topic, n)
	if len(questions) == 0 {
		return domain.RenderDirective{}, domain.ErrNoQuestions
	}

	sessionID, err := e.results.StartSession(ctx, userID, topic, len(questions), timerMinutes)
	if err != nil {
		return domain.RenderDirective{}, fmt.Errorf("start session: %w", err)
	}

	var deadline time.Time
	if timerMinutes > 0 {
		deadline = e.now().Add(time.Duration(timerMinutes) * time.Minute)
	}

	session := newSession(userID, sessionID, topic, questions, deadline)
	e.sessions.Put(userID, session)
	return e.render(session), nil
}

// SubmitAnswer dispatches a raw interaction into the state machine. With no
// active session it is a no-op. An expired deadline finishes the session
// without scoring the in-flight answer. A match parse failure requests a
// retry without advancing. Otherwise exactly one transcript entry is
// written and the session moves to the next question or finishes.
func (e *QuizEngine) SubmitAnswer(ctx context.Context, userID int64, sub domain.Submission) (Advance, error) {
	session, ok := e.sessions.Get(userID)
	if !ok {
		return Advance{Kind: AdvanceNone}, nil
	}
	if session.expired(e.now()) {
		return e.finish(ctx, session, nil)
	}

	q := session.question()
	var entry domain.TranscriptEntry
	switch q.Type {
	case domain.ArchetypeSingle:
		if sub.Kind != domain.SubmitOption {
			return Advance{Kind: AdvanceNone}, nil
		}
		entry = evaluateSingle(q, sub.Option)
	case domain.ArchetypeMulti:
		switch sub.Kind {
		case domain.SubmitToggle:
			session.toggle(sub.Option)
			directive := e.render(session)
			return Advance{Kind: AdvanceRender, Directive: &directive}, nil
		case domain.SubmitConfirm:
			entry = evaluateMulti(q, session.pendingSelection)
		default:
			return Advance{Kind: AdvanceNone}, nil
		}
	case domain.ArchetypeMatch:
		if sub.Kind != domain.SubmitMatchText {
			return Advance{Kind: AdvanceNone}, nil
		}
		var err error
		entry, err = evaluateMatch(q, session.pendingRightOrder, sub.Text)
		if err != nil {
			return Advance{Kind: AdvanceRetry}, nil
		}
	default:
		return Advance{Kind: AdvanceNone}, nil
	}

	session.record(entry)
	feedback := feedbackFor(q, entry)

	if session.current == len(session.questions) || session.expired(e.now()) {
		return e.finish(ctx, session, &feedback)
	}
	directive := e.render(session)
	return Advance{Kind: AdvanceNext, Feedback: &feedback, Directive: &directive}, nil
}

// Abandon drops a user's active session without persisting anything.
func (e *QuizEngine) Abandon(userID int64) {
	e.sessions.Delete(userID)
}

// render builds the directive for the session's current question, preparing
// the per-question scratch state on first render: an empty toggle set for
// multi, a fresh right-column permutation for match.
func (e *QuizEngine) render(session *Session) domain.RenderDirective {
	q := session.question()
	directive := domain.RenderDirective{
		Type:        q.Type,
		Topic:       session.topic,
		Prompt:      q.Prompt,
		Index:       session.current + 1,
		Total:       len(session.questions),
		SecondsLeft: session.secondsLeft(e.now()),
	}

	switch q.Type {
	case domain.ArchetypeSingle:
		directive.Options = q.Options
	case domain.ArchetypeMulti:
		directive.Options = q.Options
		if session.pendingSelection == nil {
			session.pendingSelection = make(map[string]struct{})
		}
		for _, opt := range q.Options {
			if _, ok := session.pendingSelection[opt]; ok {
				directive.Selected = append(directive.Selected, opt)
			}
		}
	case domain.ArchetypeMatch:
		if session.pendingRightOrder == nil {
			session.pendingRightOrder = e.selector.Perm(len(q.MatchRight))
		}
		directive.MatchLeft = q.MatchLeft
		directive.MatchRight = make([]string, len(q.MatchRight))
		for pos, canonical := range session.pendingRightOrder {
			directive.MatchRight[pos] = q.MatchRight[canonical]
		}
	}
	return directive
}

// finish finalizes the session exactly once: the session is removed from the
// store first, then the score and transcript are handed to persistence. A
// persistence failure still reports the summary to the caller alongside the
// error so the user sees their result.
func (e *QuizEngine) finish(ctx context.Context, session *Session, feedback *domain.Feedback) (Advance, error) {
	e.sessions.Delete(session.userID)
	if session.finished {
		return Advance{Kind: AdvanceNone}, nil
	}
	session.finished = true

	summary := domain.Summary{
		Topic: session.topic,
		Score: session.score,
		Total: len(session.questions),
	}
	advance := Advance{Kind: AdvanceFinished, Feedback: feedback, Summary: &summary}

	if err := e.results.FinishSession(ctx, session.sessionID, session.score, session.details); err != nil {
		return advance, fmt.Errorf("finish session: %w", err)
	}
	if err := e.results.AddPoints(ctx, session.userID, session.score, session.topic); err != nil {
		return advance, fmt.Errorf("add points: %w", err)
	}
	return advance, nil
}
