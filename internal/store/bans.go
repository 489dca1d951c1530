package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rojo-studio/rojo-server/internal/models"
	"gorm.io/gorm"
)

// GormBanStore manages IP bans.
type GormBanStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewGormBanStore constructs a GormBanStore.
func NewGormBanStore(db *gorm.DB) *GormBanStore {
	return &GormBanStore{db: db, nowFn: time.Now}
}

// Active returns the unexpired ban for ip, or nil.
func (s *GormBanStore) Active(ctx context.Context, ip string) (*models.IPBan, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, nil
	}
	var ban models.IPBan
	errFind := s.db.WithContext(ctx).
		Where("ip = ? AND expires_at > ?", ip, s.nowFn().UTC()).
		Order("expires_at DESC").
		Take(&ban).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("ban store: active: %w", errFind)
	}
	return &ban, nil
}

// Ban blocks ip for duration.
func (s *GormBanStore) Ban(ctx context.Context, ip string, userID *uint64, reason string, bannedBy uint64, duration time.Duration) (*models.IPBan, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, fmt.Errorf("ban store: missing ip")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("ban store: duration must be positive")
	}
	now := s.nowFn().UTC()
	ban := models.IPBan{
		IP:        ip,
		UserID:    userID,
		Reason:    strings.TrimSpace(reason),
		BannedBy:  bannedBy,
		BannedAt:  now,
		ExpiresAt: now.Add(duration),
	}
	if errCreate := s.db.WithContext(ctx).Create(&ban).Error; errCreate != nil {
		return nil, fmt.Errorf("ban store: create: %w", errCreate)
	}
	return &ban, nil
}

// List returns bans newest first. Expired bans are included when all is true.
func (s *GormBanStore) List(ctx context.Context, all bool) ([]models.IPBan, error) {
	q := s.db.WithContext(ctx).Model(&models.IPBan{})
	if !all {
		q = q.Where("expires_at > ?", s.nowFn().UTC())
	}
	var rows []models.IPBan
	if errFind := q.Order("banned_at DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ban store: list: %w", errFind)
	}
	return rows, nil
}

// Unban removes every ban for ip and reports how many were removed.
func (s *GormBanStore) Unban(ctx context.Context, ip string) (int64, error) {
	res := s.db.WithContext(ctx).Where("ip = ?", strings.TrimSpace(ip)).Delete(&models.IPBan{})
	if res.Error != nil {
		return 0, fmt.Errorf("ban store: unban: %w", res.Error)
	}
	return res.RowsAffected, nil
}
