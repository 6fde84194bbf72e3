package models

import (
	"time"
)

// AuthToken is a long-lived API key used with "Authorization: Token <key>".
// Each user has at most one.
type AuthToken struct {
	Key       string    `gorm:"primaryKey;size:40" json:"token"`
	UserID    uint      `gorm:"not null;uniqueIndex" json:"-"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"-"`
}

// TableName specifies the table name for GORM
func (AuthToken) TableName() string {
	return "auth_tokens"
}
