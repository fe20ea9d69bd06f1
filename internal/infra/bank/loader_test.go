package bank

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"edutest-quiz-service/internal/domain"
)

func writeBankFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFSLoaderReadsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeBankFile(t, dir, "math.json", `[
		{"id": "m1", "topic": "Math", "question": "2+2?", "options": ["3", "4"], "answer": "4"},
		{"id": "m2", "topic": "Math", "type": "multi", "question": "Even numbers?", "options": ["1", "2", "4"], "answers": ["2", "4"]}
	]`)
	writeBankFile(t, dir, "geo.json", `[
		{"id": "g1", "topic": "Geo", "type": "match", "question": "Match them",
		 "match_left": ["France"], "match_right": ["Paris"], "pairs": [[0, 0]]}
	]`)

	questions, err := NewFSLoader(dir).LoadQuestions(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}

	// Files load in name order, geo.json first.
	if questions[0].ID != "g1" || questions[0].Type != domain.ArchetypeMatch {
		t.Fatalf("unexpected first question: %+v", questions[0])
	}
	if !reflect.DeepEqual(questions[0].Pairs, []domain.MatchPair{{Left: 0, Right: 0}}) {
		t.Fatalf("pairs decoded wrong: %+v", questions[0].Pairs)
	}
	// A missing type means a plain single-answer question.
	if questions[1].ID != "m1" || questions[1].Type != domain.ArchetypeSingle {
		t.Fatalf("expected m1 to default to single, got %+v", questions[1])
	}
}

func TestFSLoaderSkipsBadInput(t *testing.T) {
	dir := t.TempDir()
	writeBankFile(t, dir, "broken.json", `{not json`)
	writeBankFile(t, dir, "mixed.json", `[
		{"id": "ok", "topic": "Math", "question": "2+2?", "options": ["4"], "answer": "4"},
		{"id": "no-prompt", "topic": "Math", "options": ["4"], "answer": "4"},
		{"id": "weird", "topic": "Math", "type": "essay", "question": "Discuss."}
	]`)
	writeBankFile(t, dir, "notes.txt", `not a bank file`)

	questions, err := NewFSLoader(dir).LoadQuestions(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 1 || questions[0].ID != "ok" {
		t.Fatalf("expected only the valid record, got %+v", questions)
	}
}

func TestFSLoaderEmptyDir(t *testing.T) {
	questions, err := NewFSLoader(t.TempDir()).LoadQuestions(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 0 {
		t.Fatalf("expected no questions, got %d", len(questions))
	}
}

func TestCountTopics(t *testing.T) {
	got := CountTopics([]domain.Question{
		{Topic: "math", Prompt: "a"},
		{Topic: "Biology", Prompt: "b"},
		{Topic: "math", Prompt: "c"},
		{Prompt: "d"},
	})
	want := []domain.TopicCount{
		{Topic: "Biology", Count: 1},
		{Topic: "General", Count: 1},
		{Topic: "math", Count: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
