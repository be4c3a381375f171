package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"fragment-loader/internal/models"
)

func newMiniredisStore(t *testing.T, ttl time.Duration) (*RedisStatusStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStatusStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "fragments:load:", ttl)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStatusStoreRoundTrip(t *testing.T) {
	s, _ := newMiniredisStore(t, time.Hour)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := models.LoadStatus{
		LoadID:     "load-1",
		PageURL:    "https://example.org/article/index.html",
		Status:     models.StatusDegraded,
		Fragments:  4,
		Loaded:     2,
		Failed:     1,
		Skipped:    1,
		OutputPath: "out/load-1.html",
		CreatedAt:  created,
		UpdatedAt:  created.Add(3 * time.Second),
	}
	if err := s.SetStatus(ctx, want); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	got, ok, err := s.GetStatus(ctx, "load-1")
	if err != nil || !ok {
		t.Fatalf("GetStatus: ok=%v err=%v", ok, err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("timestamps changed: %+v", got)
	}
	got.CreatedAt, got.UpdatedAt = want.CreatedAt, want.UpdatedAt
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestRedisStatusStoreOverwrite(t *testing.T) {
	s, _ := newMiniredisStore(t, time.Hour)
	ctx := context.Background()

	for _, status := range []string{models.StatusQueued, models.StatusRunning, models.StatusCompleted} {
		if err := s.SetStatus(ctx, models.LoadStatus{LoadID: "load-2", Status: status}); err != nil {
			t.Fatalf("SetStatus(%s): %v", status, err)
		}
	}
	got, ok, err := s.GetStatus(ctx, "load-2")
	if err != nil || !ok || got.Status != models.StatusCompleted {
		t.Fatalf("expected latest status, got %+v ok=%v err=%v", got, ok, err)
	}
}

func TestRedisStatusStoreTTL(t *testing.T) {
	ttl := 10 * time.Minute
	s, mr := newMiniredisStore(t, ttl)
	ctx := context.Background()

	if err := s.SetStatus(ctx, models.LoadStatus{LoadID: "load-3", Status: models.StatusQueued}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if got := mr.TTL("fragments:load:load-3"); got != ttl {
		t.Fatalf("expected ttl %s, got %s", ttl, got)
	}

	mr.FastForward(ttl + time.Second)
	if _, ok, err := s.GetStatus(ctx, "load-3"); err != nil || ok {
		t.Fatalf("expected expired status, got ok=%v err=%v", ok, err)
	}
}

func TestRedisStatusStoreMissingAndCorrupt(t *testing.T) {
	s, mr := newMiniredisStore(t, time.Hour)
	ctx := context.Background()

	if _, ok, err := s.GetStatus(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected not found, got ok=%v err=%v", ok, err)
	}

	if err := mr.Set("fragments:load:bad", "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.GetStatus(ctx, "bad"); err == nil || ok {
		t.Fatalf("expected decode error, got ok=%v err=%v", ok, err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestRedisStatusStoreKey(t *testing.T) {
	s := NewRedisStatusStoreWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "fragments:load:", time.Hour)
	defer s.Close()
	if got := s.key("abc"); got != "fragments:load:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRedisStatusStoreUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := NewRedisStatusStoreWithClient(client, "fragments:load:", time.Hour)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, ok, err := s.GetStatus(ctx, "missing"); err == nil || ok {
		t.Fatalf("expected error from unreachable redis, got ok=%v err=%v", ok, err)
	}
	if err := s.Ping(ctx); err == nil {
		t.Fatal("expected ping error")
	}
}
