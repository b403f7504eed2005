package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/authorization"
)

// User is a back-office account. Role is the coarse legacy gate; fine
// grained access comes from the roles bound through UserRole.
type User struct {
	ID                     snowflake.ID       `gorm:"primaryKey"`
	ExternalID             string             `gorm:"column:external_id;type:text;not null;uniqueIndex"`
	Email                  string             `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash           string             `gorm:"column:password_hash;type:text;not null"`
	Role                   authorization.Role `gorm:"type:text;not null"`
	MerchantID             *snowflake.ID      `gorm:"column:merchant_id;index"`
	RequiresPasswordChange bool               `gorm:"column:requires_password_change;not null;default:false"`
	LastPasswordChanged    *time.Time         `gorm:"column:last_password_changed"`
	CreatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (User) TableName() string { return "users" }

type UserRole struct {
	UserID    snowflake.ID `gorm:"primaryKey"`
	RoleID    snowflake.ID `gorm:"primaryKey;index"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UserRole) TableName() string { return "user_roles" }

// RoleRef is the short role form embedded in user views.
type RoleRef struct {
	ID   snowflake.ID `gorm:"column:id" json:"-"`
	Name string       `gorm:"column:name" json:"name"`
	Type string       `gorm:"column:role_type" json:"type"`
}
