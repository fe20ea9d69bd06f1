package app

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"edutest-quiz-service/internal/domain"
)

// evaluateSingle scores a single-choice answer. Comparison is exact and
// case-sensitive: the submitted string is a button payload taken verbatim
// from the option text, so no normalization applies.
func evaluateSingle(q domain.Question, chosen string) domain.TranscriptEntry {
	return domain.TranscriptEntry{
		QuestionID: q.ID,
		Type:       q.Type,
		Chosen:     []string{chosen},
		Expected:   []string{q.Answer},
		Correct:    chosen == q.Answer,
	}
}

// evaluateMulti scores a confirmed multi-choice selection. Correct requires
// exact set equality with the canonical answers; subsets and supersets both
// fail.
func evaluateMulti(q domain.Question, chosen map[string]struct{}) domain.TranscriptEntry {
	expected := make(map[string]struct{}, len(q.Answers))
	for _, a := range q.Answers {
		expected[a] = struct{}{}
	}

	correct := len(chosen) == len(expected)
	if correct {
		for opt := range chosen {
			if _, ok := expected[opt]; !ok {
				correct = false
				break
			}
		}
	}

	return domain.TranscriptEntry{
		QuestionID: q.ID,
		Type:       q.Type,
		Chosen:     sortedKeys(chosen),
		Expected:   sortedKeys(expected),
		Correct:    correct,
	}
}

// evaluateMatch scores a free-text pairing answer such as "A-2,B-1,C-3".
// Letters index the canonical left column; numbers index the displayed
// (shuffled) right column, so each number is translated back through
// rightOrder before comparing against the canonical pairs. A parse failure
// returns domain.ErrMatchParse and the caller must re-prompt without
// advancing the session.
func evaluateMatch(q domain.Question, rightOrder []int, raw string) (domain.TranscriptEntry, error) {
	parsed, err := parseMatchAnswer(raw, len(q.MatchLeft), len(rightOrder))
	if err != nil {
		return domain.TranscriptEntry{}, err
	}

	chosen := make(map[domain.MatchPair]struct{}, len(parsed))
	for _, p := range parsed {
		chosen[domain.MatchPair{Left: p.Left, Right: rightOrder[p.Right]}] = struct{}{}
	}
	expected := make(map[domain.MatchPair]struct{}, len(q.Pairs))
	for _, p := range q.Pairs {
		expected[p] = struct{}{}
	}

	correct := len(chosen) == len(expected)
	if correct {
		for p := range chosen {
			if _, ok := expected[p]; !ok {
				correct = false
				break
			}
		}
	}

	return domain.TranscriptEntry{
		QuestionID: q.ID,
		Type:       q.Type,
		Chosen:     encodePairs(chosen),
		Expected:   encodePairs(expected),
		Correct:    correct,
	}, nil
}

// parseMatchAnswer tokenizes "A-2,B-1" into (left index, display position)
// pairs. Whitespace is ignored and letters are case-insensitive. Malformed
// tokens, out-of-range letters or numbers, and a letter used twice all fail
// with domain.ErrMatchParse.
func parseMatchAnswer(raw string, leftN, rightN int) ([]domain.MatchPair, error) {
	text := strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
	seen := make(map[int]struct{})
	var pairs []domain.MatchPair

	for _, token := range strings.Split(text, ",") {
		if token == "" {
			continue
		}
		letter, number, ok := strings.Cut(token, "-")
		if !ok {
			return nil, fmt.Errorf("%w: token %q", domain.ErrMatchParse, token)
		}
		if len(letter) != 1 || letter[0] < 'A' || int(letter[0]-'A') >= leftN {
			return nil, fmt.Errorf("%w: unknown letter %q", domain.ErrMatchParse, letter)
		}
		li := int(letter[0] - 'A')
		n, err := strconv.Atoi(number)
		if err != nil || n < 1 || n > rightN {
			return nil, fmt.Errorf("%w: unknown number %q", domain.ErrMatchParse, number)
		}
		if _, dup := seen[li]; dup {
			return nil, fmt.Errorf("%w: duplicate letter %q", domain.ErrMatchParse, letter)
		}
		seen[li] = struct{}{}
		pairs = append(pairs, domain.MatchPair{Left: li, Right: n - 1})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: empty answer", domain.ErrMatchParse)
	}
	return pairs, nil
}

// encodePairs renders a pair set as sorted "A-2" style tokens in canonical
// indexes for transcript storage.
func encodePairs(pairs map[domain.MatchPair]struct{}) []string {
	out := make([]string, 0, len(pairs))
	for p := range pairs {
		out = append(out, fmt.Sprintf("%c-%d", 'A'+p.Left, p.Right+1))
	}
	sort.Strings(out)
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// feedbackFor summarizes an evaluated entry for the user, attaching the
// question's explanation when present.
func feedbackFor(q domain.Question, entry domain.TranscriptEntry) domain.Feedback {
	return domain.Feedback{
		Correct:     entry.Correct,
		Expected:    entry.Expected,
		Explanation: q.Explanation,
	}
}
