package watcher

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/models"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
	"gorm.io/datatypes"
)

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 1, nil
}

func TestWatcherReloadsChangedSettings(t *testing.T) {
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "watcher.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var changes atomic.Int32
	w := New(conn, Options{PollInterval: time.Hour, OnSettingsChange: func() { changes.Add(1) }})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if got := changes.Load(); got != 1 {
		t.Fatalf("changes after start = %d, want 1", got)
	}
	if got := internalsettings.PositiveIntValue(internalsettings.RateLimitMaxInFlightKey, 0); got != internalsettings.DefaultRateLimitMaxInFlight {
		t.Fatalf("max in flight = %d", got)
	}

	w.pollSettings(ctx, false)
	if got := changes.Load(); got != 1 {
		t.Fatalf("unchanged poll triggered reload, changes = %d", got)
	}

	errUpdate := conn.Model(&models.Setting{}).
		Where("key = ?", internalsettings.RateLimitMaxInFlightKey).
		Updates(map[string]any{"value": datatypes.JSON("5"), "updated_at": time.Now().UTC().Add(time.Minute)}).Error
	if errUpdate != nil {
		t.Fatalf("update setting: %v", errUpdate)
	}
	w.pollSettings(ctx, false)
	if got := changes.Load(); got != 2 {
		t.Fatalf("changes after update = %d, want 2", got)
	}
	if got := internalsettings.PositiveIntValue(internalsettings.RateLimitMaxInFlightKey, 0); got != 5 {
		t.Fatalf("max in flight = %d, want 5", got)
	}
}

func TestWatcherPurge(t *testing.T) {
	purger := &countingPurger{}
	w := New(nil, Options{Purger: purger})
	w.purge(context.Background())
	if purger.calls.Load() != 1 {
		t.Fatalf("purge calls = %d", purger.calls.Load())
	}
}
