package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserRole is the community role shown next to a user's name.
type UserRole string

// UserRole values assignable by administrators.
const (
	UserRoleUser        UserRole = "user"
	UserRoleHelper      UserRole = "helper"
	UserRoleTester      UserRole = "tester"
	UserRoleEarlyAccess UserRole = "early_access"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleUser, UserRoleHelper, UserRoleTester, UserRoleEarlyAccess:
		return true
	default:
		return false
	}
}

// Label returns the display name used in announcements.
func (r UserRole) Label() string {
	switch r {
	case UserRoleHelper:
		return "Helper"
	case UserRoleTester:
		return "Tester"
	case UserRoleEarlyAccess:
		return "Early Access"
	default:
		return "User"
	}
}

// User represents a studio account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Lower-cased login email.
	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique handle.
	Nickname string `gorm:"type:text"`                      // Display name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Role   UserRole `gorm:"type:text;not null;default:user"` // Community role.
	LastIP string   `gorm:"type:text;index"`                 // Client IP seen on last sign in.

	IsAdmin      bool           `gorm:"not null;default:false"` // Grants access to the admin console.
	IsSuperAdmin bool           `gorm:"not null;default:false"` // Bypasses admin permission checks.
	Permissions  datatypes.JSON `gorm:"type:jsonb"`             // Admin permission keys.

	TOTPSecret            string  `gorm:"type:text"`    // TOTP secret for MFA.
	PasskeyID             []byte  `gorm:"type:bytea"`   // WebAuthn credential ID.
	PasskeyPublicKey      []byte  `gorm:"type:bytea"`   // WebAuthn public key bytes.
	PasskeySignCount      *uint32 `gorm:"type:bigint"`  // WebAuthn signature counter.
	PasskeyBackupEligible *bool   `gorm:"type:boolean"` // WebAuthn backup eligibility flag.
	PasskeyBackupState    *bool   `gorm:"type:boolean"` // WebAuthn backup state flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// HasMFA reports whether the user enrolled any second factor.
func (u *User) HasMFA() bool {
	if u == nil {
		return false
	}
	return u.TOTPSecret != "" || len(u.PasskeyID) > 0
}
