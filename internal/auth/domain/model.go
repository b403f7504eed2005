// Package domain contains core types for login sessions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Session is a persisted login session. Only the SHA-256 hash of the
// cookie token is stored.
type Session struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UserID     snowflake.ID `gorm:"column:user_id;not null;index"`
	TokenHash  string       `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	UserAgent  string       `gorm:"column:user_agent;type:text;not null;default:''"`
	IPAddress  string       `gorm:"column:ip_address;type:text;not null;default:''"`
	ExpiresAt  time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt  *time.Time   `gorm:"column:revoked_at"`
	CreatedAt  time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt time.Time    `gorm:"column:last_seen_at;not null;default:CURRENT_TIMESTAMP"`
}

func (Session) TableName() string { return "sessions" }
