package models

import "time"

// GlobalMessageType controls how a banner is styled.
type GlobalMessageType string

// GlobalMessageType values.
const (
	GlobalMessageInfo    GlobalMessageType = "info"
	GlobalMessageWarning GlobalMessageType = "warning"
	GlobalMessageSuccess GlobalMessageType = "success"
)

// Valid reports whether t is a known banner type.
func (t GlobalMessageType) Valid() bool {
	switch t {
	case GlobalMessageInfo, GlobalMessageWarning, GlobalMessageSuccess:
		return true
	default:
		return false
	}
}

// GlobalMessage is a site-wide banner.
type GlobalMessage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Message   string            `gorm:"type:text;not null"`             // Banner text.
	Type      GlobalMessageType `gorm:"type:text;not null;default:info"` // Banner style.
	CreatedBy uint64            `gorm:"not null"`                        // Admin user ID.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Publish timestamp.
}

// Changelog is a published release note.
type Changelog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Version     string `gorm:"type:text;not null"` // Release version label.
	Title       string `gorm:"type:text;not null"` // Headline.
	Description string `gorm:"type:text"`          // Body text.
	CreatedBy   uint64 `gorm:"not null"`           // Admin user ID.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Publish timestamp.
}
