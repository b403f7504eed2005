package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusActive          Status = "ACTIVE"
	StatusInactive        Status = "INACTIVE"
)

// Merchant is never hard-deleted; rejection is terminal but retained.
type Merchant struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	Name            string            `gorm:"type:text;not null"`
	Slug            string            `gorm:"type:text;not null;uniqueIndex"`
	Email           string            `gorm:"type:text;not null;index"`
	Phone           string            `gorm:"type:text;not null;default:''"`
	Address         string            `gorm:"type:text;not null;default:''"`
	Status          Status            `gorm:"type:text;not null;index"`
	IsActive        bool              `gorm:"column:is_active;not null;default:false"`
	Profile         datatypes.JSONMap `gorm:"type:json"`
	ApprovedAt      *time.Time        `gorm:"column:approved_at"`
	RejectedAt      *time.Time        `gorm:"column:rejected_at"`
	RejectionReason string            `gorm:"column:rejection_reason;type:text;not null;default:''"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Merchant) TableName() string { return "merchants" }

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// Transition is a conditional status change from From to To.
type Transition struct {
	From            Status
	To              Status
	IsActive        bool
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	RejectionReason string
	At              time.Time
}
