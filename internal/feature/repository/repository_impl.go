package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/feature/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const featureColumns = `id, slug, name, description, is_page_level, role_type, min_hierarchy_level, active, created_at, updated_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, feature *domain.Feature) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO features (`+featureColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feature.ID,
		feature.Slug,
		feature.Name,
		feature.Description,
		feature.IsPageLevel,
		feature.RoleType,
		feature.MinHierarchyLevel,
		feature.Active,
		feature.CreatedAt,
		feature.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Feature, error) {
	var f domain.Feature
	err := db.WithContext(ctx).Raw(
		`SELECT `+featureColumns+` FROM features WHERE id = ?`,
		id,
	).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == 0 {
		return nil, nil
	}
	return &f, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Feature, error) {
	var f domain.Feature
	err := db.WithContext(ctx).Raw(
		`SELECT `+featureColumns+` FROM features WHERE slug = ?`,
		slug,
	).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == 0 {
		return nil, nil
	}
	return &f, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Feature, error) {
	var items []domain.Feature
	stmt := db.WithContext(ctx).Model(&domain.Feature{})
	if filter.RoleType != nil {
		stmt = stmt.Where("role_type = ?", *filter.RoleType)
	}
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}
	if err := stmt.Order("role_type ASC").Order("slug ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Feature, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Feature
	err := db.WithContext(ctx).Raw(
		`SELECT `+featureColumns+` FROM features WHERE id IN ?`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, feature *domain.Feature) error {
	if feature == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE features
		 SET name = ?, description = ?, min_hierarchy_level = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		feature.Name,
		feature.Description,
		feature.MinHierarchyLevel,
		feature.Active,
		feature.UpdatedAt,
		feature.ID,
	).Error
}

func (r *repo) DeleteUnreferenced(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM features
		 WHERE id = ? AND NOT EXISTS (SELECT 1 FROM role_features rf WHERE rf.feature_id = ?)`,
		id,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
