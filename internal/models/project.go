package models

import (
	"time"

	"gorm.io/datatypes"
)

// Project stores one workspace: its explorer tree, open editors and chat threads.
type Project struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index"`    // Owning user ID.
	Owner   *User  `gorm:"foreignKey:OwnerID"` // Owning user record.

	Name       string `gorm:"type:text;not null"`             // Display name.
	InviteCode string `gorm:"type:text;not null;uniqueIndex"` // Join code shared with collaborators.

	Collaborators UserIDs        `gorm:"type:jsonb"` // Users that joined by invite code.
	ExplorerData  datatypes.JSON `gorm:"type:jsonb"` // Explorer tree snapshot.
	OpenScripts   datatypes.JSON `gorm:"type:jsonb"` // Paths of scripts open in the editor.
	ChatThreads   datatypes.JSON `gorm:"type:jsonb"` // Chat threads with their messages.

	ActiveThreadID string `gorm:"type:text"` // Thread shown when the project opens.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last modification timestamp.
}
