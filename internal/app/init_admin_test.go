package app

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/security"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
)

func TestCreateAdminUserWithConn_SetsSuperAdmin(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "rojo-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	if errCreate := CreateAdminUserWithConn(conn, AdminInput{Email: " Owner@Example.com ", Username: "owner", Password: "password"}, "Rojo Dev"); errCreate != nil {
		t.Fatalf("CreateAdminUserWithConn: %v", errCreate)
	}

	var admin models.User
	if errFind := conn.First(&admin).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if !admin.IsAdmin || !admin.IsSuperAdmin {
		t.Fatalf("expected first admin to be super admin, got %+v", admin)
	}
	if admin.Email != "owner@example.com" {
		t.Fatalf("expected normalized email, got %q", admin.Email)
	}
	if !security.CheckPassword(admin.Password, "password") {
		t.Fatalf("expected hashed password to verify")
	}

	var setting models.Setting
	if errFind := conn.Where("key = ?", internalsettings.SiteNameKey).First(&setting).Error; errFind != nil {
		t.Fatalf("find site name: %v", errFind)
	}
	if name, ok := internalsettings.ParseString(json.RawMessage(setting.Value)); !ok || name != "Rojo Dev" {
		t.Fatalf("expected site name Rojo Dev, got %s", string(setting.Value))
	}
}

func TestValidateAdminInput(t *testing.T) {
	req := InitRequest{Admin: AdminInput{Email: "bad", Username: "owner", Password: "password"}}
	if errValidate := validateAdminInput(&req); errValidate == nil {
		t.Fatalf("expected invalid email error")
	}

	req = InitRequest{Admin: AdminInput{Email: "owner@example.com", Username: "owner", Password: "12345"}}
	if errValidate := validateAdminInput(&req); errValidate == nil {
		t.Fatalf("expected short password error")
	}

	req = InitRequest{Admin: AdminInput{Email: "Owner@Example.com", Username: " owner ", Password: "123456"}}
	if errValidate := validateAdminInput(&req); errValidate != nil {
		t.Fatalf("validateAdminInput: %v", errValidate)
	}
	if req.Admin.Email != "owner@example.com" || req.Admin.Username != "owner" {
		t.Fatalf("unexpected normalization: %+v", req)
	}
	if req.SiteName != internalsettings.DefaultSiteName {
		t.Fatalf("expected default site name, got %q", req.SiteName)
	}
}
