package domain

import (
	"encoding/json"
	"fmt"
)

// Archetype identifies one of the three supported question kinds.
type Archetype string

const (
	ArchetypeSingle Archetype = "single"
	ArchetypeMulti  Archetype = "multi"
	ArchetypeMatch  Archetype = "match"
)

// Known reports whether the archetype is one the engine can render and score.
func (a Archetype) Known() bool {
	switch a {
	case ArchetypeSingle, ArchetypeMulti, ArchetypeMatch:
		return true
	}
	return false
}

// MatchPair associates a left-column entry with a right-column entry,
// both as indexes into the canonical (unshuffled) columns.
type MatchPair struct {
	Left  int
	Right int
}

// Bank files encode pairs as two-element arrays, e.g. [[0,1],[1,0]].
func (p *MatchPair) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("match pair must have exactly 2 elements, got %d", len(raw))
	}
	p.Left, p.Right = raw[0], raw[1]
	return nil
}

func (p MatchPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Left, p.Right})
}

// Question is an immutable record from the question bank. Which fields are
// meaningful depends on Type: Options/Answer for single, Options/Answers for
// multi, MatchLeft/MatchRight/Pairs for match.
type Question struct {
	ID          string      `json:"id"`
	Topic       string      `json:"topic"`
	Type        Archetype   `json:"type"`
	Prompt      string      `json:"question"`
	Options     []string    `json:"options,omitempty"`
	Answer      string      `json:"answer,omitempty"`
	Answers     []string    `json:"answers,omitempty"`
	MatchLeft   []string    `json:"match_left,omitempty"`
	MatchRight  []string    `json:"match_right,omitempty"`
	Pairs       []MatchPair `json:"pairs,omitempty"`
	Explanation string      `json:"explanation,omitempty"`
}

// Clone returns a deep copy so per-session shuffles never touch the bank's
// canonical record.
func (q Question) Clone() Question {
	c := q
	c.Options = append([]string(nil), q.Options...)
	c.Answers = append([]string(nil), q.Answers...)
	c.MatchLeft = append([]string(nil), q.MatchLeft...)
	c.MatchRight = append([]string(nil), q.MatchRight...)
	c.Pairs = append([]MatchPair(nil), q.Pairs...)
	return c
}

// TopicCount is one row of the topic listing.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// TranscriptEntry records the outcome of a single answered question.
// For match questions Chosen/Expected hold letter-number tokens expressed in
// canonical indexes (e.g. "A-2"), so transcripts are comparable across
// sessions regardless of how the right column was shuffled.
type TranscriptEntry struct {
	QuestionID string    `json:"id"`
	Type       Archetype `json:"type"`
	Chosen     []string  `json:"chosen"`
	Expected   []string  `json:"expected"`
	Correct    bool      `json:"ok"`
}

// RenderDirective tells the transport layer what to show for the current
// question. Options and MatchRight are already in display (shuffled) order.
type RenderDirective struct {
	Type        Archetype `json:"type"`
	Topic       string    `json:"topic"`
	Prompt      string    `json:"prompt"`
	Index       int       `json:"index"` // 1-based position within the session
	Total       int       `json:"total"`
	SecondsLeft int       `json:"secondsLeft,omitempty"` // 0 when the session is untimed
	Options     []string  `json:"options,omitempty"`
	Selected    []string  `json:"selected,omitempty"` // multi only: currently toggled options
	MatchLeft   []string  `json:"matchLeft,omitempty"`
	MatchRight  []string  `json:"matchRight,omitempty"`
}

// Feedback describes the outcome of the question the user just answered.
type Feedback struct {
	Correct     bool     `json:"correct"`
	Expected    []string `json:"expected"`
	Explanation string   `json:"explanation,omitempty"`
}

// Summary is the final result of a finished session.
type Summary struct {
	Topic string `json:"topic"`
	Score int    `json:"score"`
	Total int    `json:"total"`
}

// User is a registered participant.
type User struct {
	ID       int64
	FullName string
	Approved bool
	Points   int
}

// LeaderboardEntry is one row of the persisted scoreboard.
type LeaderboardEntry struct {
	DisplayName string `json:"displayName"`
	Points      int    `json:"points"`
}

// SubmissionKind discriminates the raw interaction types a transport can
// forward to the engine.
type SubmissionKind int

const (
	// SubmitOption answers a single-choice question with one option.
	SubmitOption SubmissionKind = iota
	// SubmitToggle flips one option of a multi-choice question.
	SubmitToggle
	// SubmitConfirm locks in the current multi-choice selection.
	SubmitConfirm
	// SubmitMatchText carries the free-text pairing answer for a match question.
	SubmitMatchText
)

// Submission is a user's raw response as collected by the transport.
type Submission struct {
	Kind   SubmissionKind
	Option string // SubmitOption, SubmitToggle
	Text   string // SubmitMatchText
}

func OptionSubmission(option string) Submission {
	return Submission{Kind: SubmitOption, Option: option}
}

func ToggleSubmission(option string) Submission {
	return Submission{Kind: SubmitToggle, Option: option}
}

func ConfirmSubmission() Submission {
	return Submission{Kind: SubmitConfirm}
}

func MatchSubmission(text string) Submission {
	return Submission{Kind: SubmitMatchText, Text: text}
}
