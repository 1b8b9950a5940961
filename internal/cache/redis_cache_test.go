package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*ProcessedCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewProcessedCache(rdb, ttl), mr
}

func TestProcessedCache_MarkOnce(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	seen, err := c.Seen(ctx, "wamid.ABC")
	if err != nil {
		t.Fatalf("Seen() error: %v", err)
	}
	if seen {
		t.Fatalf("expected unseen id")
	}

	added, err := c.Mark(ctx, "wamid.ABC")
	if err != nil || !added {
		t.Fatalf("first Mark() added=%v err=%v", added, err)
	}
	added, err = c.Mark(ctx, "wamid.ABC")
	if err != nil || added {
		t.Fatalf("second Mark() added=%v err=%v", added, err)
	}

	if seen, _ := c.Seen(ctx, "wamid.ABC"); !seen {
		t.Fatalf("expected id to be seen")
	}
	if ttl := mr.TTL("processed:wamid.ABC"); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}
}

func TestProcessedCache_Expires(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if _, err := c.Mark(ctx, "wamid.X"); err != nil {
		t.Fatalf("Mark() error: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if seen, _ := c.Seen(ctx, "wamid.X"); seen {
		t.Fatalf("expected key to expire")
	}
}

func TestProcessedCache_ErrorWhenDown(t *testing.T) {
	t.Parallel()
	c, mr := newTestCache(t, time.Minute)
	mr.Close()

	if _, err := c.Seen(context.Background(), "wamid.X"); err == nil {
		t.Fatalf("expected error with redis down")
	}
}
