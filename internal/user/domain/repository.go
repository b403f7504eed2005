package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	UpdatePassword(ctx context.Context, db *gorm.DB, id snowflake.ID, hash string, changedAt time.Time) error
	CountByRole(ctx context.Context, db *gorm.DB, role string) (int64, error)
	MerchantExists(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) (bool, error)

	ListRoles(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]RoleRef, error)
	ReplaceRoles(ctx context.Context, db *gorm.DB, userID snowflake.ID, roleIDs []snowflake.ID, now time.Time) error
	AddRole(ctx context.Context, db *gorm.DB, userID, roleID snowflake.ID, now time.Time) error
	// RemoveRole reports whether an assignment existed.
	RemoveRole(ctx context.Context, db *gorm.DB, userID, roleID snowflake.ID) (bool, error)
}
