// Package domain holds the merchant subscription model and its lifecycle
// contract.
package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a merchant subscription.
type Status string

const (
	StatusActiveTrial Status = "ACTIVE_TRIAL"
	StatusActivePaid  Status = "ACTIVE_PAID"
	StatusExpired     Status = "EXPIRED"
	StatusCancelled   Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActiveTrial, StatusActivePaid, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the status grants merchant-side access.
func (s Status) IsActive() bool {
	return s == StatusActiveTrial || s == StatusActivePaid
}

// Subscription is the single subscription row owned by a merchant.
// TrialEndDate is set only while the subscription is, or expired as, a
// trial.
type Subscription struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	MerchantID         snowflake.ID `gorm:"column:merchant_id;not null;uniqueIndex"`
	Status             Status       `gorm:"type:text;not null;index"`
	TrialEndDate       *time.Time   `gorm:"column:trial_end_date;index"`
	TransactionFeeRate float64      `gorm:"column:transaction_fee_rate;not null"`
	PaidAt             *time.Time   `gorm:"column:paid_at"`
	ExpiredAt          *time.Time   `gorm:"column:expired_at"`
	CancelledAt        *time.Time   `gorm:"column:cancelled_at"`
	ReactivatedAt      *time.Time   `gorm:"column:reactivated_at"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }

// TrialDue reports whether a trial has reached its end date at now.
func (s Subscription) TrialDue(now time.Time) bool {
	return s.Status == StatusActiveTrial && s.TrialEndDate != nil && !now.Before(*s.TrialEndDate)
}

// DaysRemaining is the whole days left in a trial, rounded up and never
// negative. Nil outside ACTIVE_TRIAL.
func (s Subscription) DaysRemaining(now time.Time) *int {
	if s.Status != StatusActiveTrial || s.TrialEndDate == nil {
		return nil
	}
	days := 0
	if left := s.TrialEndDate.Sub(now); left > 0 {
		days = int(math.Ceil(left.Hours() / 24))
	}
	return &days
}

// Transition is the column set written by a conditional status change.
type Transition struct {
	From          Status
	To            Status
	TrialEndDate  *time.Time
	PaidAt        *time.Time
	ExpiredAt     *time.Time
	CancelledAt   *time.Time
	ReactivatedAt *time.Time
	At            time.Time
}
