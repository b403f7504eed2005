package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/merchant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, merchant *domain.Merchant) error {
	return db.WithContext(ctx).Create(merchant).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Merchant, error) {
	var items []domain.Merchant
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) ListSlugs(ctx context.Context, db *gorm.DB, prefix string) ([]string, error) {
	var slugs []string
	err := db.WithContext(ctx).
		Model(&domain.Merchant{}).
		Where("slug = ? OR slug LIKE ?", prefix, prefix+"-%").
		Pluck("slug", &slugs).Error
	if err != nil {
		return nil, err
	}
	return slugs, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status, cursor *domain.Cursor, limit int) ([]domain.Merchant, error) {
	stmt := db.WithContext(ctx).Model(&domain.Merchant{}).Where("status = ?", status)
	if cursor != nil {
		stmt = stmt.Where("(created_at > ?) OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var items []domain.Merchant
	err := stmt.Order("created_at ASC").Order("id ASC").Limit(limit + 1).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Apply(ctx context.Context, db *gorm.DB, id snowflake.ID, t domain.Transition) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE merchants
		 SET status = ?, is_active = ?,
		     approved_at = COALESCE(?, approved_at),
		     rejected_at = COALESCE(?, rejected_at),
		     rejection_reason = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		t.To,
		t.IsActive,
		t.ApprovedAt,
		t.RejectedAt,
		t.RejectionReason,
		t.At,
		id,
		t.From,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
