package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, role *Role) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Role, error)
	FindByName(ctx context.Context, db *gorm.DB, roleType featuredomain.RoleType, name string) (*Role, error)
	List(ctx context.Context, db *gorm.DB, roleType *featuredomain.RoleType) ([]Role, error)
	ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Role, error)
	Update(ctx context.Context, db *gorm.DB, role *Role) error
	// DeleteCustom removes a non-system role and reports whether it did.
	DeleteCustom(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	ReplaceGrants(ctx context.Context, db *gorm.DB, roleID snowflake.ID, grants []RoleFeature) error
	ListGrants(ctx context.Context, db *gorm.DB, roleIDs []snowflake.ID) ([]GrantRow, error)
	DeleteGrants(ctx context.Context, db *gorm.DB, roleID snowflake.ID) error

	ListAssignedUserIDs(ctx context.Context, db *gorm.DB, roleID snowflake.ID) ([]snowflake.ID, error)
	DeleteAssignments(ctx context.Context, db *gorm.DB, roleID snowflake.ID) error
}
