package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rojo-studio/rojo-server/internal/models"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.FlaggedMessage{},
		&models.IPBan{},
		&models.GlobalMessage{},
		&models.Changelog{},
		&models.Setting{},
		&models.KVEntry{},
		&models.ChatUsage{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureRateLimitSettings(conn); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureSetting(conn, internalsettings.ChatHistoryTurnsKey, internalsettings.DefaultChatHistoryTurns); errSeed != nil {
		return errSeed
	}

	ddls := []string{
		`CREATE INDEX IF NOT EXISTS idx_ip_bans_ip_expires ON ip_bans (ip, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_flagged_messages_user_created ON flagged_messages (user_id, created_at)`,
	}
	if IsSQLite(conn) {
		ddls = append(ddls, `UPDATE users SET permissions = '[]' WHERE permissions IS NULL`)
	} else {
		ddls = append(ddls, `UPDATE users SET permissions = '[]'::jsonb WHERE permissions IS NULL`)
	}
	for _, ddl := range ddls {
		if errExec := conn.Exec(ddl).Error; errExec != nil {
			return fmt.Errorf("db: exec %q: %w", firstLine(ddl), errExec)
		}
	}
	return nil
}

// ensureRateLimitSettings seeds the limiter knobs and Redis toggle.
func ensureRateLimitSettings(conn *gorm.DB) error {
	seeds := []struct {
		key   string
		value any
	}{
		{internalsettings.RateLimitRequestsPerWindowKey, internalsettings.DefaultRateLimitRequestsPerWindow},
		{internalsettings.RateLimitWindowSecondsKey, internalsettings.DefaultRateLimitWindowSeconds},
		{internalsettings.RateLimitMaxInFlightKey, internalsettings.DefaultRateLimitMaxInFlight},
		{internalsettings.RateLimitRedisEnabledKey, false},
	}
	for _, seed := range seeds {
		if errSeed := ensureSetting(conn, seed.key, seed.value); errSeed != nil {
			return errSeed
		}
	}
	return nil
}

// ensureSetting ensures a setting exists and defaults it when empty.
func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := json.RawMessage(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     datatypes.JSON(rawValue),
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}

func firstLine(s string) string {
	trimmed := strings.TrimSpace(s)
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}
