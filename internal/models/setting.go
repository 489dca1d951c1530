package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting is a runtime key/value configuration entry.
type Setting struct {
	Key       string         `gorm:"primaryKey;type:text"` // Setting key.
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`  // JSON encoded value.
	UpdatedAt time.Time      `gorm:"not null;index"`       // Last update timestamp.
}

// KVEntry backs the database implementation of the key/value store.
type KVEntry struct {
	Key       string     `gorm:"primaryKey;type:text"` // Entry key.
	Value     []byte     `gorm:"type:bytea"`           // Raw value.
	ExpiresAt *time.Time `gorm:"index"`                // Optional expiry.
	UpdatedAt time.Time  `gorm:"not null"`             // Last write timestamp.
}
