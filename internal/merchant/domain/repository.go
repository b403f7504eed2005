package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, merchant *Merchant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Merchant, error)
	ListSlugs(ctx context.Context, db *gorm.DB, prefix string) ([]string, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status, cursor *Cursor, limit int) ([]Merchant, error)
	// Apply writes t only if the merchant is still in t.From.
	Apply(ctx context.Context, db *gorm.DB, id snowflake.ID, t Transition) (bool, error)
}
