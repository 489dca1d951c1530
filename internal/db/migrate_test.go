package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rojo-studio/rojo-server/internal/models"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
)

func TestMigrate_SeedsSettings(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "rojo-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	// Running twice must not duplicate or overwrite.
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}

	var setting models.Setting
	if errFind := conn.Where("key = ?", internalsettings.RateLimitRequestsPerWindowKey).First(&setting).Error; errFind != nil {
		t.Fatalf("find setting: %v", errFind)
	}
	if string(setting.Value) != "6" {
		t.Fatalf("expected default quota 6, got %s", string(setting.Value))
	}

	var count int64
	if errCount := conn.Model(&models.Setting{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count settings: %v", errCount)
	}
	if count != 5 {
		t.Fatalf("expected 5 seeded settings, got %d", count)
	}
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "rojo-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	first := models.User{Email: "a@example.com", Username: "a", Password: "x"}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	dup := models.User{Email: "a@example.com", Username: "b", Password: "x"}
	errDup := conn.Create(&dup).Error
	if errDup == nil {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(errDup) {
		t.Fatalf("expected IsUniqueViolation, got %v", errDup)
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("expected plain error to not be a unique violation")
	}
}
