package models

import "time"

// ChatUsage records one relayed chat request.
type ChatUsage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RequestID string  `gorm:"type:text;not null;uniqueIndex"` // Relay request ID.
	UserID    uint64  `gorm:"not null;index"`                 // Requesting user ID.
	ProjectID *uint64 `gorm:"index"`                          // Project the chat belongs to.
	Model     string  `gorm:"type:text;not null"`             // Upstream model name.

	Fragments int    `gorm:"not null;default:0"`     // Streamed fragments relayed.
	Bytes     int64  `gorm:"not null;default:0"`     // Streamed content bytes relayed.
	Failed    bool   `gorm:"not null;default:false"` // Whether the upstream failed.
	Error     string `gorm:"type:text"`              // Failure detail.

	StartedAt  time.Time `gorm:"not null;index"` // Relay start.
	FinishedAt time.Time `gorm:"not null"`       // Relay end.
}
