package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	"github.com/smallbiznis/backoffice/internal/role/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const roleColumns = `id, role_type, name, description, hierarchy_level, is_system_role, created_at, updated_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, role *domain.Role) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO roles (`+roleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		role.ID,
		role.Type,
		role.Name,
		role.Description,
		role.HierarchyLevel,
		role.IsSystemRole,
		role.CreatedAt,
		role.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Role, error) {
	var role domain.Role
	err := db.WithContext(ctx).Raw(`SELECT `+roleColumns+` FROM roles WHERE id = ?`, id).Scan(&role).Error
	if err != nil {
		return nil, err
	}
	if role.ID == 0 {
		return nil, nil
	}
	return &role, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, roleType featuredomain.RoleType, name string) (*domain.Role, error) {
	var role domain.Role
	err := db.WithContext(ctx).Raw(
		`SELECT `+roleColumns+` FROM roles WHERE role_type = ? AND name = ?`,
		roleType,
		name,
	).Scan(&role).Error
	if err != nil {
		return nil, err
	}
	if role.ID == 0 {
		return nil, nil
	}
	return &role, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, roleType *featuredomain.RoleType) ([]domain.Role, error) {
	var items []domain.Role
	stmt := db.WithContext(ctx).Model(&domain.Role{})
	if roleType != nil {
		stmt = stmt.Where("role_type = ?", *roleType)
	}
	err := stmt.Order("role_type ASC").Order("hierarchy_level DESC").Order("name ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Role
	err := db.WithContext(ctx).Raw(`SELECT `+roleColumns+` FROM roles WHERE id IN ?`, ids).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, role *domain.Role) error {
	if role == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE roles SET name = ?, description = ?, hierarchy_level = ?, updated_at = ? WHERE id = ?`,
		role.Name,
		role.Description,
		role.HierarchyLevel,
		role.UpdatedAt,
		role.ID,
	).Error
}

func (r *repo) DeleteCustom(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM roles WHERE id = ? AND is_system_role = ?`, id, false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ReplaceGrants(ctx context.Context, db *gorm.DB, roleID snowflake.ID, grants []domain.RoleFeature) error {
	if err := r.DeleteGrants(ctx, db, roleID); err != nil {
		return err
	}
	if len(grants) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&grants).Error
}

func (r *repo) ListGrants(ctx context.Context, db *gorm.DB, roleIDs []snowflake.ID) ([]domain.GrantRow, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var rows []domain.GrantRow
	err := db.WithContext(ctx).Raw(
		`SELECT rf.role_id, rf.feature_id, f.slug AS feature_slug, rf.full_access, rf.actions
		 FROM role_features rf
		 JOIN features f ON f.id = rf.feature_id
		 WHERE rf.role_id IN ?
		 ORDER BY f.slug ASC`,
		roleIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) DeleteGrants(ctx context.Context, db *gorm.DB, roleID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM role_features WHERE role_id = ?`, roleID).Error
}

func (r *repo) ListAssignedUserIDs(ctx context.Context, db *gorm.DB, roleID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Table("user_roles").Where("role_id = ?", roleID).Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) DeleteAssignments(ctx context.Context, db *gorm.DB, roleID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM user_roles WHERE role_id = ?`, roleID).Error
}
