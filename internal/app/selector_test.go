package app

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"edutest-quiz-service/internal/domain"
)

func testBank() []domain.Question {
	return []domain.Question{
		singleQuestion(),
		multiQuestion(),
		matchQuestion(),
		{
			ID:      "h1",
			Topic:   "History",
			Type:    domain.ArchetypeSingle,
			Prompt:  "Year of the moon landing?",
			Options: []string{"1965", "1969", "1972"},
			Answer:  "1969",
		},
	}
}

func TestSelectFiltersAndCaps(t *testing.T) {
	selector := NewSelectorWithRand(rand.New(rand.NewSource(1)))
	bank := testBank()

	picked := selector.Select(bank, "Geometry", 2)
	if len(picked) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(picked))
	}
	seen := make(map[string]bool)
	for _, q := range picked {
		if q.Topic != "Geometry" {
			t.Fatalf("expected topic Geometry, got %q", q.Topic)
		}
		if seen[q.ID] {
			t.Fatalf("duplicate question %q", q.ID)
		}
		seen[q.ID] = true
	}

	// Asking for more than the pool returns the whole pool, not an error.
	if got := selector.Select(bank, "History", 10); len(got) != 1 {
		t.Fatalf("expected 1 question, got %d", len(got))
	}
	if got := selector.Select(bank, "Astronomy", 5); len(got) != 0 {
		t.Fatalf("expected no questions for unknown topic, got %d", len(got))
	}
}

func TestSelectShufflesCopiesOnly(t *testing.T) {
	selector := NewSelectorWithRand(rand.New(rand.NewSource(7)))
	bank := testBank()
	canonical := append([]string(nil), bank[0].Options...)

	for i := 0; i < 50; i++ {
		picked := selector.Select(bank, "Geometry", 3)
		for _, q := range picked {
			if q.Type == domain.ArchetypeMatch {
				continue
			}
			var want []string
			switch q.ID {
			case "q1":
				want = []string{"3", "4", "5"}
			case "q2":
				want = []string{"2", "3", "5", "9"}
			}
			got := append([]string(nil), q.Options...)
			sort.Strings(got)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("shuffle changed option set for %s: %v", q.ID, q.Options)
			}
		}
	}

	// Repeated selections must never mutate the canonical records.
	if !reflect.DeepEqual(bank[0].Options, canonical) {
		t.Fatalf("canonical options mutated: %v", bank[0].Options)
	}
}

func TestPermCoversAllPositions(t *testing.T) {
	selector := NewSelectorWithRand(rand.New(rand.NewSource(3)))
	perm := selector.Perm(5)
	if len(perm) != 5 {
		t.Fatalf("expected permutation of 5, got %v", perm)
	}
	seen := make(map[int]bool)
	for _, v := range perm {
		if v < 0 || v >= 5 || seen[v] {
			t.Fatalf("invalid permutation %v", perm)
		}
		seen[v] = true
	}
}
