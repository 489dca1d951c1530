package models

import "time"

// FlaggedMessage records text rejected by the content filter.
type FlaggedMessage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;index"`     // Submitting user ID.
	Message string `gorm:"type:text;not null"` // Offending text.
	Reason  string `gorm:"type:text;not null"` // Classifier reason.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Flag timestamp.
}

// IPBan blocks sign up and sign in from a client IP until ExpiresAt.
type IPBan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	IP       string  `gorm:"type:text;not null;index"` // Banned client IP.
	UserID   *uint64 `gorm:"index"`                    // User the ban originated from.
	Reason   string  `gorm:"type:text"`                // Moderator note.
	BannedBy uint64  `gorm:"not null"`                 // Admin user ID.

	BannedAt  time.Time `gorm:"not null"`       // Ban start.
	ExpiresAt time.Time `gorm:"not null;index"` // Ban end.
}
