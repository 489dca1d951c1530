package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rojo-studio/rojo-server/internal/models"
	"gorm.io/gorm"
)

// GormFlagStore persists content filter flags.
type GormFlagStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewGormFlagStore constructs a GormFlagStore.
func NewGormFlagStore(db *gorm.DB) *GormFlagStore {
	return &GormFlagStore{db: db, nowFn: time.Now}
}

// RecordFlag implements contentfilter.Recorder.
func (s *GormFlagStore) RecordFlag(ctx context.Context, userID uint64, message, reason string) error {
	row := models.FlaggedMessage{
		UserID:    userID,
		Message:   message,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: s.nowFn().UTC(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("flag store: record: %w", errCreate)
	}
	return nil
}

// List returns flags newest first. A zero userID lists every user.
func (s *GormFlagStore) List(ctx context.Context, userID uint64, limit int) ([]models.FlaggedMessage, error) {
	q := s.db.WithContext(ctx).Model(&models.FlaggedMessage{}).Order("created_at DESC").Order("id DESC")
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.FlaggedMessage
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("flag store: list: %w", errFind)
	}
	return rows, nil
}

// CountByUser returns flag counts keyed by user id.
func (s *GormFlagStore) CountByUser(ctx context.Context, userIDs []uint64) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		UserID uint64
		Total  int64
	}
	errScan := s.db.WithContext(ctx).Model(&models.FlaggedMessage{}).
		Select("user_id, COUNT(*) AS total").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error
	if errScan != nil {
		return nil, fmt.Errorf("flag store: count: %w", errScan)
	}
	for _, row := range rows {
		out[row.UserID] = row.Total
	}
	return out, nil
}

// Delete removes one flag. It reports whether a row was removed.
func (s *GormFlagStore) Delete(ctx context.Context, id uint64) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.FlaggedMessage{})
	if res.Error != nil {
		return false, fmt.Errorf("flag store: delete: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ClearUser removes every flag recorded for userID.
func (s *GormFlagStore) ClearUser(ctx context.Context, userID uint64) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.FlaggedMessage{})
	if res.Error != nil {
		return 0, fmt.Errorf("flag store: clear: %w", res.Error)
	}
	return res.RowsAffected, nil
}
