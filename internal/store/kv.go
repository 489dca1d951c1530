package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rojo-studio/rojo-server/internal/kvstore"
	"github.com/rojo-studio/rojo-server/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormKVStore persists kvstore entries in the kv_entries table.
type GormKVStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewGormKVStore constructs a GormKVStore.
func NewGormKVStore(db *gorm.DB) *GormKVStore {
	return &GormKVStore{db: db, nowFn: time.Now}
}

// Get implements kvstore.Store.
func (s *GormKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm kv store: not initialized")
	}
	var entry models.KVEntry
	errFind := s.db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).Take(&entry).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, kvstore.ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("gorm kv store: get: %w", errFind)
	}
	if entry.ExpiresAt != nil && !s.nowFn().UTC().Before(*entry.ExpiresAt) {
		if errDelete := s.Delete(ctx, key); errDelete != nil {
			return nil, errDelete
		}
		return nil, kvstore.ErrNotFound
	}
	return entry.Value, nil
}

// Set implements kvstore.Store.
func (s *GormKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm kv store: not initialized")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("gorm kv store: missing key")
	}
	now := s.nowFn().UTC()
	entry := models.KVEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		entry.ExpiresAt = &expiresAt
	}
	errSave := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
	if errSave != nil {
		return fmt.Errorf("gorm kv store: set: %w", errSave)
	}
	return nil
}

// Delete implements kvstore.Store.
func (s *GormKVStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm kv store: not initialized")
	}
	if errDelete := s.db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).Delete(&models.KVEntry{}).Error; errDelete != nil {
		return fmt.Errorf("gorm kv store: delete: %w", errDelete)
	}
	return nil
}

// PurgeExpired removes expired entries and returns how many were deleted.
func (s *GormKVStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.nowFn().UTC()).
		Delete(&models.KVEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("gorm kv store: purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}
