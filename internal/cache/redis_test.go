package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nao1215/crudcrawl/internal/navigation"
)

var _ navigation.RelationCache = (*RelationCache)(nil)

func newTestCache(t *testing.T, session string, opts ...Option) (*RelationCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRelationCache(client, session, opts...), mr
}

func TestRelationCache(t *testing.T) {
	t.Parallel()

	t.Run("lookup and store", func(t *testing.T) {
		t.Parallel()

		c, _ := newTestCache(t, "s1")
		ctx := context.Background()

		if _, found, err := c.Lookup(ctx, "post", "comment"); err != nil || found {
			t.Fatalf("expected miss, got found=%v err=%v", found, err)
		}
		if err := c.Store(ctx, "post", "comment", true); err != nil {
			t.Fatalf("failed to store: %v", err)
		}
		if err := c.Store(ctx, "comment", "post", false); err != nil {
			t.Fatalf("failed to store: %v", err)
		}

		related, found, err := c.Lookup(ctx, "post", "comment")
		if err != nil || !found || !related {
			t.Errorf("expected cached relation, got related=%v found=%v err=%v", related, found, err)
		}
		related, found, err = c.Lookup(ctx, "comment", "post")
		if err != nil || !found || related {
			t.Errorf("expected cached negative answer, got related=%v found=%v err=%v", related, found, err)
		}
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		a := NewRelationCache(client, "a")
		b := NewRelationCache(client, "b")
		ctx := context.Background()

		if err := a.Store(ctx, "order", "item", true); err != nil {
			t.Fatalf("failed to store: %v", err)
		}
		if _, found, _ := b.Lookup(ctx, "order", "item"); found {
			t.Error("expected answer to stay in its session")
		}
		if err := a.Clear(ctx); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		if _, found, _ := a.Lookup(ctx, "order", "item"); found {
			t.Error("expected answer to be cleared")
		}
	})

	t.Run("ttl", func(t *testing.T) {
		t.Parallel()

		c, mr := newTestCache(t, "ttl", WithTTL(time.Minute))
		ctx := context.Background()
		if err := c.Store(ctx, "post", "comment", true); err != nil {
			t.Fatalf("failed to store: %v", err)
		}
		mr.FastForward(2 * time.Minute)
		if _, found, _ := c.Lookup(ctx, "post", "comment"); found {
			t.Error("expected answer to expire")
		}
	})

	t.Run("server down", func(t *testing.T) {
		t.Parallel()

		c, mr := newTestCache(t, "down")
		mr.Close()
		if _, _, err := c.Lookup(context.Background(), "a", "b"); err == nil {
			t.Error("expected error when redis is unavailable")
		}
	})
}

func TestDial(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	if _, err := Dial(context.Background(), addr); err == nil {
		t.Error("expected error for closed server")
	}
}
