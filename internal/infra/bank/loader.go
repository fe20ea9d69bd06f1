package bank

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"edutest-quiz-service/internal/domain"
)

// Loader fetches question records from a backing store.
type Loader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// FSLoader reads every *.json file in a directory, each holding an array of
// question records. A corrupt or unreadable file is skipped; the aggregate
// load never fails because of one bad file. Records with an unknown type or
// an empty prompt are dropped; a missing type defaults to single.
type FSLoader struct {
	dir string
}

func NewFSLoader(dir string) *FSLoader {
	return &FSLoader{dir: dir}
}

func (l *FSLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	paths, err := filepath.Glob(filepath.Join(l.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var items []domain.Question
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var records []domain.Question
		if err := json.Unmarshal(data, &records); err != nil {
			continue
		}
		for _, q := range records {
			if q.Type == "" {
				q.Type = domain.ArchetypeSingle
			}
			if !q.Type.Known() || q.Prompt == "" {
				continue
			}
			items = append(items, q)
		}
	}
	return items, nil
}

// CountTopics aggregates questions into topic counts, sorted
// case-insensitively by topic name. Untagged questions are grouped under
// "General".
func CountTopics(questions []domain.Question) []domain.TopicCount {
	counts := make(map[string]int)
	for _, q := range questions {
		topic := q.Topic
		if topic == "" {
			topic = "General"
		}
		counts[topic]++
	}

	out := make([]domain.TopicCount, 0, len(counts))
	for topic, count := range counts {
		out = append(out, domain.TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Topic), strings.ToLower(out[j].Topic)
		if a != b {
			return a < b
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

// Static is a fixed in-memory bank (useful for tests/demos).
type Static struct {
	questions []domain.Question
}

func NewStatic(questions []domain.Question) *Static {
	return &Static{questions: questions}
}

func (s *Static) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	return s.questions, nil
}

func (s *Static) Questions(_ context.Context) ([]domain.Question, error) {
	return s.questions, nil
}

func (s *Static) Topics(_ context.Context) ([]domain.TopicCount, error) {
	return CountTopics(s.questions), nil
}
