package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"edutest-quiz-service/internal/app"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSessionStoreLivenessMarker(t *testing.T) {
	mr, client := testClient(t)
	store := NewSessionStore(client, time.Hour)

	session := &app.Session{}
	store.Put(42, session)

	if got, ok := store.Get(42); !ok || got != session {
		t.Fatalf("expected stored session back, got %v %v", got, ok)
	}
	if !mr.Exists("edutest:session:42") {
		t.Fatalf("expected liveness key in redis")
	}
	if ttl := mr.TTL("edutest:session:42"); ttl != time.Hour {
		t.Fatalf("expected 1h TTL on liveness key, got %v", ttl)
	}

	store.Delete(42)
	if _, ok := store.Get(42); ok {
		t.Fatalf("expected session gone after delete")
	}
	if mr.Exists("edutest:session:42") {
		t.Fatalf("expected liveness key cleared")
	}
}

func TestSessionStoreSurvivesRedisOutage(t *testing.T) {
	mr, client := testClient(t)
	store := NewSessionStore(client, time.Hour)

	// The marker is best-effort: session bookkeeping works with redis down.
	mr.Close()

	session := &app.Session{}
	store.Put(7, session)
	if got, ok := store.Get(7); !ok || got != session {
		t.Fatalf("expected session despite redis outage")
	}
	store.Delete(7)
	if _, ok := store.Get(7); ok {
		t.Fatalf("expected session gone after delete")
	}
}
