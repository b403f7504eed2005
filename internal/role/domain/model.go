package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	"gorm.io/datatypes"
)

type Role struct {
	ID             snowflake.ID           `gorm:"primaryKey"`
	Type           featuredomain.RoleType `gorm:"column:role_type;type:text;not null;uniqueIndex:ux_roles_type_name,priority:1"`
	Name           string                 `gorm:"type:text;not null;uniqueIndex:ux_roles_type_name,priority:2"`
	Description    string                 `gorm:"type:text;not null;default:''"`
	HierarchyLevel int                    `gorm:"column:hierarchy_level;not null"`
	IsSystemRole   bool                   `gorm:"column:is_system_role;not null;default:false"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Role) TableName() string { return "roles" }

// RoleFeature is one grant row. FullAccess marks page-level or
// unconditional grants; Actions is meaningful only when it is false.
type RoleFeature struct {
	RoleID     snowflake.ID                `gorm:"primaryKey"`
	FeatureID  snowflake.ID                `gorm:"primaryKey;index"`
	FullAccess bool                        `gorm:"column:full_access;not null"`
	Actions    datatypes.JSONSlice[string] `gorm:"not null"`
}

func (RoleFeature) TableName() string { return "role_features" }

// GrantRow is a RoleFeature joined with its feature slug.
type GrantRow struct {
	RoleID      snowflake.ID                `gorm:"column:role_id"`
	FeatureID   snowflake.ID                `gorm:"column:feature_id"`
	FeatureSlug string                      `gorm:"column:feature_slug"`
	FullAccess  bool                        `gorm:"column:full_access"`
	Actions     datatypes.JSONSlice[string] `gorm:"column:actions"`
}
