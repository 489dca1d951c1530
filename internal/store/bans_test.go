package store

import (
	"context"
	"testing"
	"time"
)

func TestGormBanStoreLifecycle(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	bans := NewGormBanStore(conn)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bans.nowFn = func() time.Time { return now }

	if ban, err := bans.Active(ctx, "10.0.0.1"); err != nil || ban != nil {
		t.Fatalf("Active() before ban = %#v, %v", ban, err)
	}
	if _, err := bans.Ban(ctx, "10.0.0.1", nil, "spam", 1, time.Hour); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	ban, err := bans.Active(ctx, "10.0.0.1")
	if err != nil || ban == nil || ban.Reason != "spam" {
		t.Fatalf("Active() = %#v, %v", ban, err)
	}

	now = now.Add(2 * time.Hour)
	if ban, _ = bans.Active(ctx, "10.0.0.1"); ban != nil {
		t.Fatal("expired ban still active")
	}
	active, _ := bans.List(ctx, false)
	all, _ := bans.List(ctx, true)
	if len(active) != 0 || len(all) != 1 {
		t.Fatalf("active=%d all=%d", len(active), len(all))
	}
	removed, err := bans.Unban(ctx, "10.0.0.1")
	if err != nil || removed != 1 {
		t.Fatalf("Unban() = %d, %v", removed, err)
	}
}
