package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, merchant_id, status, trial_end_date, transaction_fee_rate, paid_at, expired_at, cancelled_at, reactivated_at, created_at, updated_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.MerchantID,
		sub.Status,
		sub.TrialEndDate,
		sub.TransactionFeeRate,
		sub.PaidAt,
		sub.ExpiredAt,
		sub.CancelledAt,
		sub.ReactivatedAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByMerchantID(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, `merchant_id = ?`, merchantID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Raw(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+where, arg).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) Apply(ctx context.Context, db *gorm.DB, id snowflake.ID, t domain.Transition) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?,
		     trial_end_date = ?,
		     paid_at = COALESCE(?, paid_at),
		     expired_at = COALESCE(?, expired_at),
		     cancelled_at = COALESCE(?, cancelled_at),
		     reactivated_at = COALESCE(?, reactivated_at),
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		t.To,
		t.TrialEndDate,
		t.PaidAt,
		t.ExpiredAt,
		t.CancelledAt,
		t.ReactivatedAt,
		t.At,
		id,
		t.From,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ExpireIfDue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, expired_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND trial_end_date IS NOT NULL AND trial_end_date <= ?`,
		domain.StatusExpired,
		now,
		now,
		id,
		domain.StatusActiveTrial,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListDueTrialIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("status = ? AND trial_end_date IS NOT NULL AND trial_end_date <= ?", domain.StatusActiveTrial, now).
		Order("trial_end_date ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) MerchantStatus(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) (string, error) {
	var statuses []string
	err := db.WithContext(ctx).Table("merchants").Where("id = ?", merchantID).Limit(1).Pluck("status", &statuses).Error
	if err != nil || len(statuses) == 0 {
		return "", err
	}
	return statuses[0], nil
}
