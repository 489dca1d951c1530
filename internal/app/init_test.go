package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/config"
	"github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/models"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvDBConnection,
		config.EnvJWTSecret,
		config.EnvChatAPIKey,
		config.EnvOpenRouterAPIKey,
		config.EnvChatBaseURL,
		config.EnvChatModel,
		config.EnvWebAuthnRPID,
		config.EnvWebAuthnRPOrigins,
	} {
		t.Setenv(key, "")
	}
}

func postSetup(t *testing.T, engine *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v0/init/setup", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestInitSetup_WritesChatAndWebAuthnConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clearConfigEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	setup := newInitSetup(configPath, 8318)
	engine := setup.engine()

	rec := postSetup(t, engine, InitRequest{
		Database: DatabaseInput{Type: "sqlite", Path: filepath.Join(dir, "rojo.db")},
		SiteName: "Rojo Dev",
		Admin:    AdminInput{Email: "owner@example.com", Username: "owner", Password: "password"},
		Chat:     ChatInput{BaseURL: "https://llm.example.com/api/v1/", Model: "vendor/model-a", APIKey: " sk-test "},
		WebAuthn: WebAuthnInput{RPOrigins: []string{"https://studio.example.com/", "http://localhost:5173"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	select {
	case <-setup.done:
	default:
		t.Fatalf("expected setup to signal completion")
	}

	chatCfg, err := config.LoadChatConfig(configPath)
	if err != nil {
		t.Fatalf("LoadChatConfig: %v", err)
	}
	if chatCfg.BaseURL != "https://llm.example.com/api/v1" || chatCfg.Model != "vendor/model-a" || chatCfg.APIKey != "sk-test" {
		t.Fatalf("unexpected chat config: %#v", chatCfg)
	}

	webCfg, err := config.LoadWebAuthnConfig(configPath)
	if err != nil {
		t.Fatalf("LoadWebAuthnConfig: %v", err)
	}
	if webCfg.RPID != "studio.example.com" {
		t.Fatalf("expected rp id derived from first origin, got %q", webCfg.RPID)
	}
	if len(webCfg.RPOrigins) != 2 || webCfg.RPOrigins[0] != "https://studio.example.com" {
		t.Fatalf("unexpected origins: %#v", webCfg.RPOrigins)
	}
	if webCfg.RPDisplayName != "Rojo Dev" {
		t.Fatalf("expected display name to default to site name, got %q", webCfg.RPDisplayName)
	}

	jwtCfg, _ := config.LoadJWTConfig(configPath)
	if len(jwtCfg.Secret) < 32 {
		t.Fatalf("expected generated jwt secret, got %q", jwtCfg.Secret)
	}

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		t.Fatalf("LoadDatabaseDSN: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	var admins int64
	if errCount := conn.Model(&models.User{}).Where("is_super_admin = ?", true).Count(&admins).Error; errCount != nil {
		t.Fatalf("count admins: %v", errCount)
	}
	if admins != 1 {
		t.Fatalf("expected one super admin, got %d", admins)
	}

	rec = postSetup(t, engine, InitRequest{
		Database: DatabaseInput{Type: "sqlite", Path: filepath.Join(dir, "other.db")},
		Admin:    AdminInput{Email: "second@example.com", Username: "second", Password: "password"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected second setup to be rejected, got %d", rec.Code)
	}
}

func TestInitSetup_OmitsEmptyChatAndWebAuthn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clearConfigEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	rec := postSetup(t, newInitSetup(configPath, 8318).engine(), InitRequest{
		Database: DatabaseInput{Type: "sqlite", Path: filepath.Join(dir, "rojo.db")},
		Admin:    AdminInput{Email: "owner@example.com", Username: "owner", Password: "password"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	chatCfg, _ := config.LoadChatConfig(configPath)
	if chatCfg != (config.ChatConfig{}) {
		t.Fatalf("expected empty chat config, got %#v", chatCfg)
	}
	webCfg, _ := config.LoadWebAuthnConfig(configPath)
	if webCfg.RPID != "" || len(webCfg.RPOrigins) != 0 {
		t.Fatalf("expected passkeys disabled, got %#v", webCfg)
	}
}

func TestValidateInitRequest_RejectsBadUpstreamSettings(t *testing.T) {
	base := func() InitRequest {
		return InitRequest{
			Database: DatabaseInput{Type: "sqlite"},
			Admin:    AdminInput{Email: "owner@example.com", Username: "owner", Password: "password"},
		}
	}

	req := base()
	req.Chat.BaseURL = "ftp://llm.example.com"
	if err := validateInitRequest(&req); err == nil {
		t.Fatalf("expected invalid chat base url error")
	}

	req = base()
	req.WebAuthn.RPOrigins = []string{"studio.example.com"}
	if err := validateInitRequest(&req); err == nil {
		t.Fatalf("expected invalid origin error")
	}

	req = base()
	req.WebAuthn.RPID = "studio.example.com"
	if err := validateInitRequest(&req); err == nil {
		t.Fatalf("expected missing origins error")
	}

	req = base()
	req.Database = DatabaseInput{Type: "postgres", Host: "localhost", Port: 5432, User: "rojo", Name: "rojo"}
	if err := validateInitRequest(&req); err == nil {
		t.Fatalf("expected missing database password error")
	}

	req = base()
	if err := validateInitRequest(&req); err != nil {
		t.Fatalf("validateInitRequest: %v", err)
	}
	if req.Database.Path != defaultSQLitePath {
		t.Fatalf("expected default sqlite path, got %q", req.Database.Path)
	}
}
