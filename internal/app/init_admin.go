package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/security"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateAdminUser migrates the database at dsn and seeds the first super admin.
func CreateAdminUser(dsn string, admin AdminInput, siteName string) error {
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return fmt.Errorf("open database: %w", errOpen)
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		defer func() {
			if errClose := sqlDB.Close(); errClose != nil {
				log.WithError(errClose).Warn("init: close admin connection")
			}
		}()
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateAdminUserWithConn(conn, admin, siteName)
}

// CreateAdminUserWithConn inserts the super admin and the site name in one transaction.
func CreateAdminUserWithConn(conn *gorm.DB, admin AdminInput, siteName string) error {
	hash, errHash := security.HashPassword(admin.Password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}
	now := time.Now().UTC()
	user := models.User{
		Email:        strings.ToLower(strings.TrimSpace(admin.Email)),
		Username:     strings.TrimSpace(admin.Username),
		Nickname:     strings.TrimSpace(admin.Username),
		Password:     hash,
		Role:         models.UserRoleUser,
		IsAdmin:      true,
		IsSuperAdmin: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return fmt.Errorf("create admin: %w", errCreate)
		}
		return saveSiteName(tx, siteName, now)
	})
}

func saveSiteName(tx *gorm.DB, siteName string, now time.Time) error {
	if strings.TrimSpace(siteName) == "" {
		return nil
	}
	raw, errMarshal := json.Marshal(strings.TrimSpace(siteName))
	if errMarshal != nil {
		return fmt.Errorf("encode site name: %w", errMarshal)
	}
	setting := models.Setting{Key: internalsettings.SiteNameKey, Value: datatypes.JSON(raw), UpdatedAt: now}
	errSave := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if errSave != nil {
		return fmt.Errorf("save site name: %w", errSave)
	}
	return nil
}
