package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, feature *Feature) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Feature, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Feature, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Feature, error)
	ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Feature, error)
	Update(ctx context.Context, db *gorm.DB, feature *Feature) error
	// DeleteUnreferenced removes the feature only when no role grant
	// points at it and reports whether a row was deleted.
	DeleteUnreferenced(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

type ListFilter struct {
	RoleType *RoleType
	Active   *bool
}
