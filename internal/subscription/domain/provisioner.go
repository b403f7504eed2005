package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -source=provisioner.go -destination=mocks/mock_provisioner.go -package=mocks

// Provisioner creates the trial subscription of a newly approved
// merchant inside the caller's transaction.
type Provisioner interface {
	ProvisionTrial(ctx context.Context, tx *gorm.DB, merchantID snowflake.ID, now time.Time) (*Subscription, error)
}
