package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// AuditLog is an append-only record of a lifecycle or
// authorization-affecting mutation.
type AuditLog struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType     ActorType         `gorm:"type:text;not null" json:"actorType"`
	ActorID       *string           `gorm:"type:text" json:"actorId,omitempty"`
	Action        string            `gorm:"type:text;not null;index" json:"action"`
	TargetType    string            `gorm:"type:text;not null;index:idx_audit_logs_target,priority:1" json:"targetType"`
	TargetID      string            `gorm:"type:text;not null;index:idx_audit_logs_target,priority:2" json:"targetId"`
	CorrelationID string            `gorm:"type:text;not null;default:''" json:"correlationId"`
	RequestID     string            `gorm:"type:text;not null;default:''" json:"requestId,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// ListFilter narrows a listing. Zero values do not filter; Since is
// inclusive and Until exclusive.
type ListFilter struct {
	Action     string
	ActorID    string
	TargetType string
	TargetID   string
	Since      time.Time
	Until      time.Time
	Cursor     *AuditCursor
	Limit      int
}
