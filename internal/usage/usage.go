// Package usage persists one row per relayed chat request.
package usage

import (
	"context"
	"strings"
	"time"

	"github.com/rojo-studio/rojo-server/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record describes a finished relay.
type Record struct {
	RequestID  string
	UserID     uint64
	ProjectID  *uint64
	Model      string
	Fragments  int
	Bytes      int64
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// GormRecorder writes relay usage rows.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder constructs a GormRecorder backed by GORM.
func NewGormRecorder(db *gorm.DB) *GormRecorder { return &GormRecorder{db: db} }

// HandleUsage stores record. It runs detached from the request context so a
// client disconnect still leaves a usage row behind.
func (r *GormRecorder) HandleUsage(ctx context.Context, record Record) {
	if r == nil || r.db == nil || strings.TrimSpace(record.RequestID) == "" {
		return
	}
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	row := models.ChatUsage{
		RequestID:  strings.TrimSpace(record.RequestID),
		UserID:     record.UserID,
		ProjectID:  record.ProjectID,
		Model:      strings.TrimSpace(record.Model),
		Fragments:  record.Fragments,
		Bytes:      record.Bytes,
		StartedAt:  normalizeTime(record.StartedAt),
		FinishedAt: normalizeTime(record.FinishedAt),
	}
	if record.Err != nil {
		row.Failed = true
		row.Error = truncate(record.Err.Error(), 512)
	}
	errCreate := r.db.WithContext(dbCtx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "request_id"}}, DoNothing: true}).
		Create(&row).Error
	if errCreate != nil {
		log.WithError(errCreate).WithField("request_id", row.RequestID).Warn("usage: failed to persist chat usage")
	}
}

// ListFilter narrows List results.
type ListFilter struct {
	UserID uint64
	Since  time.Time
	Limit  int
}

// List returns usage rows newest first.
func (r *GormRecorder) List(ctx context.Context, filter ListFilter) ([]models.ChatUsage, error) {
	q := r.db.WithContext(ctx).Model(&models.ChatUsage{})
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("started_at >= ?", filter.Since.UTC())
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.ChatUsage
	if errFind := q.Order("started_at DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	return rows, nil
}

// normalizeTime returns a UTC timestamp, defaulting to now.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
