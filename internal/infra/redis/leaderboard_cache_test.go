package redis

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"edutest-quiz-service/internal/domain"
)

type countingProvider struct {
	calls   int
	entries []domain.LeaderboardEntry
	err     error
}

func (p *countingProvider) TopScores(context.Context, string, int) ([]domain.LeaderboardEntry, error) {
	p.calls++
	return p.entries, p.err
}

func TestLeaderboardCacheHitsRedis(t *testing.T) {
	ctx := context.Background()
	mr, client := testClient(t)
	provider := &countingProvider{entries: []domain.LeaderboardEntry{
		{DisplayName: "Alice", Points: 10},
		{DisplayName: "Bob", Points: 7},
	}}
	cache := NewLeaderboardCache(client, provider, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := cache.TopScores(ctx, "Math", 15)
		if err != nil {
			t.Fatalf("top scores: %v", err)
		}
		if !reflect.DeepEqual(got, provider.entries) {
			t.Fatalf("got %+v, want %+v", got, provider.entries)
		}
	}
	if provider.calls != 1 {
		t.Fatalf("expected one provider call, got %d", provider.calls)
	}
	if !mr.Exists("edutest:leaderboard:Math:15") {
		t.Fatalf("expected cached snapshot in redis")
	}

	// Different topic or limit is a separate snapshot.
	if _, err := cache.TopScores(ctx, "Math", 5); err != nil {
		t.Fatalf("top scores: %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected provider call for new key, got %d", provider.calls)
	}

	// After expiry the provider is consulted again.
	mr.FastForward(2 * time.Minute)
	if _, err := cache.TopScores(ctx, "Math", 15); err != nil {
		t.Fatalf("top scores after expiry: %v", err)
	}
	if provider.calls != 3 {
		t.Fatalf("expected reload after TTL, got %d calls", provider.calls)
	}
}

func TestLeaderboardCachePropagatesProviderError(t *testing.T) {
	_, client := testClient(t)
	wantErr := errors.New("db down")
	cache := NewLeaderboardCache(client, &countingProvider{err: wantErr}, time.Minute)

	if _, err := cache.TopScores(context.Background(), "Math", 15); !errors.Is(err, wantErr) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
