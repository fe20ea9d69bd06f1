package app

import (
	"time"

	"edutest-quiz-service/internal/domain"
)

// Session is the mutable state of one user's quiz attempt. It is owned by a
// single conversation: the transport guarantees interactions for one user
// are dispatched strictly in arrival order, so the session itself carries no
// lock.
type Session struct {
	userID    int64
	sessionID int64
	topic     string
	questions []domain.Question // sampled and option-shuffled, frozen for the session
	current   int
	score     int
	details   []domain.TranscriptEntry
	deadline  time.Time // zero when untimed
	finished  bool

	// pendingRightOrder maps display position -> canonical index of the
	// current match question's right column. Built once at render, consumed
	// at evaluation.
	pendingRightOrder []int
	// pendingSelection holds the toggled options of the current multi question.
	pendingSelection map[string]struct{}
}

func newSession(userID, sessionID int64, topic string, questions []domain.Question, deadline time.Time) *Session {
	return &Session{
		userID:    userID,
		sessionID: sessionID,
		topic:     topic,
		questions: questions,
		deadline:  deadline,
	}
}

func (s *Session) expired(now time.Time) bool {
	return !s.deadline.IsZero() && now.After(s.deadline)
}

func (s *Session) secondsLeft(now time.Time) int {
	if s.deadline.IsZero() {
		return 0
	}
	left := int(s.deadline.Sub(now).Seconds())
	if left < 1 {
		left = 1
	}
	return left
}

func (s *Session) question() domain.Question {
	return s.questions[s.current]
}

func (s *Session) toggle(option string) {
	if s.pendingSelection == nil {
		s.pendingSelection = make(map[string]struct{})
	}
	if _, ok := s.pendingSelection[option]; ok {
		delete(s.pendingSelection, option)
	} else {
		s.pendingSelection[option] = struct{}{}
	}
}

// record appends exactly one transcript entry, bumps the score on a correct
// answer, advances the cursor, and discards the per-question scratch state.
func (s *Session) record(entry domain.TranscriptEntry) {
	s.details = append(s.details, entry)
	if entry.Correct {
		s.score++
	}
	s.current++
	s.pendingRightOrder = nil
	s.pendingSelection = nil
}
