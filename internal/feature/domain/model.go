package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RoleType scopes features and roles to one side of the platform.
type RoleType string

const (
	RoleTypePlatformOwner RoleType = "PLATFORM_OWNER"
	RoleTypeMerchant      RoleType = "MERCHANT"
)

func (t RoleType) Valid() bool {
	return t == RoleTypePlatformOwner || t == RoleTypeMerchant
}

type Feature struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	Slug              string       `gorm:"type:text;not null;uniqueIndex:ux_features_slug"`
	Name              string       `gorm:"type:text;not null"`
	Description       string       `gorm:"type:text;not null;default:''"`
	IsPageLevel       bool         `gorm:"column:is_page_level;not null"`
	RoleType          RoleType     `gorm:"column:role_type;type:text;not null;index"`
	MinHierarchyLevel int          `gorm:"column:min_hierarchy_level;not null;default:1"`
	Active            bool         `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Feature) TableName() string { return "features" }
