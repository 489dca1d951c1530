package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/models"
)

func TestHasAdminInitialized(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "rojo-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	initialized, err := HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false before migrate")
	}

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized after migrate: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false with no users")
	}

	now := time.Now().UTC()
	player := models.User{
		Email:     "player@example.com",
		Username:  "player",
		Password:  "hashed-password",
		Role:      models.UserRoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&player).Error; errCreate != nil {
		t.Fatalf("create player: %v", errCreate)
	}
	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized with player: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false with only non-admin users")
	}

	admin := models.User{
		Email:     "admin@example.com",
		Username:  "admin",
		Password:  "hashed-password",
		Role:      models.UserRoleUser,
		IsAdmin:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}

	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized after seed: %v", err)
	}
	if !initialized {
		t.Fatalf("expected initialized=true after admin created")
	}
}
