package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/splitlab/splitlab/internal/cache"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := cache.NewMemory()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)

	data, ok := c.Get(ctx, "k")
	if !ok || string(data) != "v" {
		t.Errorf("expected hit with v, got (%q, %v)", data, ok)
	}

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := cache.NewMemory()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), -time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestMemoryCache_Invalidate(t *testing.T) {
	c := cache.NewMemory()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)
	c.Invalidate(ctx, "a", "b")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected a to be invalidated")
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("expected b to be invalidated")
	}
}

func TestMemoryCache_InvalidatePrefix(t *testing.T) {
	c := cache.NewMemory()
	ctx := context.Background()

	c.Set(ctx, "assignment:e1:u1", []byte("1"), time.Minute)
	c.Set(ctx, "assignment:e1:u2", []byte("2"), time.Minute)
	c.Set(ctx, "assignment:e2:u1", []byte("3"), time.Minute)

	c.InvalidatePrefix(ctx, "assignment:e1:")

	if _, ok := c.Get(ctx, "assignment:e1:u1"); ok {
		t.Error("expected e1 entries to be invalidated")
	}
	if _, ok := c.Get(ctx, "assignment:e2:u1"); !ok {
		t.Error("expected e2 entry to survive")
	}
}
