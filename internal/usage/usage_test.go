package usage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rojo-studio/rojo-server/internal/db"
)

func TestGormRecorderHandleUsage(t *testing.T) {
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	recorder := NewGormRecorder(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now().Add(-time.Second)
	recorder.HandleUsage(ctx, Record{RequestID: "req-1", UserID: 3, Model: "m", Fragments: 4, Bytes: 12, StartedAt: start, FinishedAt: time.Now()})
	recorder.HandleUsage(context.Background(), Record{RequestID: "req-1", UserID: 3, Model: "m"})
	recorder.HandleUsage(context.Background(), Record{RequestID: "req-2", UserID: 4, Model: "m", Err: errors.New("upstream 500")})

	rows, err := recorder.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	mine, _ := recorder.List(context.Background(), ListFilter{UserID: 4})
	if len(mine) != 1 || !mine[0].Failed || mine[0].Error != "upstream 500" {
		t.Fatalf("rows = %#v", mine)
	}
}
