package app

import (
	"math/rand"
	"sync"
	"time"

	"edutest-quiz-service/internal/domain"
)

// Selector samples questions for a session and owns all randomness: pool
// shuffling, per-question option shuffling, and the display permutation for
// match right columns.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSelector() *Selector {
	return NewSelectorWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSelectorWithRand allows deterministic shuffles in tests.
func NewSelectorWithRand(rnd *rand.Rand) *Selector {
	return &Selector{rnd: rnd}
}

// Select filters the bank to topic, uniformly permutes the pool, and returns
// deep copies of the first min(n, pool) questions. Options of single/multi
// questions are shuffled independently per copy; the canonical bank records
// are never mutated. A short pool is not an error: fewer questions come back.
func (s *Selector) Select(bank []domain.Question, topic string, n int) []domain.Question {
	pool := make([]domain.Question, 0, len(bank))
	for _, q := range bank {
		if q.Topic == topic {
			pool = append(pool, q)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rnd.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if n > len(pool) {
		n = len(pool)
	}
	if n < 0 {
		n = 0
	}

	picked := make([]domain.Question, 0, n)
	for _, q := range pool[:n] {
		c := q.Clone()
		switch c.Type {
		case domain.ArchetypeSingle, domain.ArchetypeMulti:
			s.rnd.Shuffle(len(c.Options), func(i, j int) {
				c.Options[i], c.Options[j] = c.Options[j], c.Options[i]
			})
		}
		picked = append(picked, c)
	}
	return picked
}

// Perm returns a fresh uniform permutation of [0,n), used to shuffle the
// right column of a match question for display.
func (s *Selector) Perm(n int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Perm(n)
}
