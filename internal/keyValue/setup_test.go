package keyValue

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(zaptest.NewLogger(t).Sugar())

	if v, err := store.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("got %q, %v", v, err)
	}

	if err := store.Set(ctx, "user_exists:1", "y", time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, _ := store.Get(ctx, "user_exists:1"); v != "y" {
		t.Errorf("got %q", v)
	}

	if err := store.Set(ctx, "user_exists:1", "n", time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, _ := store.Get(ctx, "user_exists:1"); v != "n" {
		t.Errorf("overwrite got %q", v)
	}
}

func TestLocalExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(zaptest.NewLogger(t).Sugar())
	now := time.Now()
	store.now = func() time.Time { return now }

	store.Set(ctx, "k", "v", time.Second)
	now = now.Add(2 * time.Second)

	if v, _ := store.Get(ctx, "k"); v != "" {
		t.Errorf("expired key returned %q", v)
	}

	store.deleteExpired()
	if len(store.hashmap) != 0 {
		t.Errorf("expired key not evicted")
	}
}

func TestDel(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(zaptest.NewLogger(t).Sugar())

	store.Set(ctx, "k", "v", time.Minute)
	if err := store.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if v, _ := store.Get(ctx, "k"); v != "" {
		t.Errorf("deleted key returned %q", v)
	}
}
