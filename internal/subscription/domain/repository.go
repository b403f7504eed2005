package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByMerchantID(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) (*Subscription, error)

	// Apply writes t only if the row is still in t.From and reports
	// whether it did.
	Apply(ctx context.Context, db *gorm.DB, id snowflake.ID, t Transition) (bool, error)
	// ExpireIfDue moves a due trial to EXPIRED and reports whether it did.
	ExpireIfDue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	ListDueTrialIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)

	// MerchantStatus returns the owning merchant's status, or "" when the
	// merchant does not exist.
	MerchantStatus(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) (string, error)
}
