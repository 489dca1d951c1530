package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_TTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	if errSet := store.Set(ctx, "session", []byte("abc"), time.Minute); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if errSet := store.Set(ctx, "forever", []byte("x"), 0); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}

	value, err := store.Get(ctx, "session")
	if err != nil || string(value) != "abc" {
		t.Fatalf("expected abc, got %q err=%v", value, err)
	}

	now = now.Add(time.Minute)
	if _, err = store.Get(ctx, "session"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
	if _, err = store.Get(ctx, "forever"); err != nil {
		t.Fatalf("expected no expiry for ttl=0, got %v", err)
	}

	if errDel := store.Delete(ctx, "forever"); errDel != nil {
		t.Fatalf("delete: %v", errDel)
	}
	if _, err = store.Get(ctx, "forever"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	value := []byte("abc")
	if errSet := store.Set(ctx, "k", value, 0); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	value[0] = 'z'
	got, _ := store.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("expected stored copy, got %q", got)
	}
}
