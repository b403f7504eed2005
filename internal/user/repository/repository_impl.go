package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, external_id, email, password_hash, role, merchant_id, requires_password_change, last_password_changed, created_at, updated_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.ExternalID,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.MerchantID,
		user.RequiresPasswordChange,
		user.LastPasswordChanged,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return r.findOne(ctx, db, `email = ?`, email)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(`SELECT `+userColumns+` FROM users WHERE `+where, arg).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) UpdatePassword(ctx context.Context, db *gorm.DB, id snowflake.ID, hash string, changedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users
		 SET password_hash = ?, requires_password_change = ?, last_password_changed = ?, updated_at = ?
		 WHERE id = ?`,
		hash,
		false,
		changedAt,
		changedAt,
		id,
	).Error
}

func (r *repo) CountByRole(ctx context.Context, db *gorm.DB, role string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}

func (r *repo) MerchantExists(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM merchants WHERE id = ?`, merchantID).Scan(&count).Error
	return count > 0, err
}

func (r *repo) ListRoles(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.RoleRef, error) {
	var refs []domain.RoleRef
	err := db.WithContext(ctx).Raw(
		`SELECT r.id, r.name, r.role_type
		 FROM user_roles ur
		 JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = ?
		 ORDER BY r.hierarchy_level DESC, r.name ASC`,
		userID,
	).Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *repo) ReplaceRoles(ctx context.Context, db *gorm.DB, userID snowflake.ID, roleIDs []snowflake.ID, now time.Time) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM user_roles WHERE user_id = ?`, userID).Error; err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return nil
	}
	rows := make([]domain.UserRole, 0, len(roleIDs))
	for _, id := range roleIDs {
		rows = append(rows, domain.UserRole{UserID: userID, RoleID: id, CreatedAt: now})
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func (r *repo) AddRole(ctx context.Context, db *gorm.DB, userID, roleID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_roles (user_id, role_id, created_at)
		 SELECT ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM user_roles WHERE user_id = ? AND role_id = ?)`,
		userID, roleID, now, userID, roleID,
	).Error
}

func (r *repo) RemoveRole(ctx context.Context, db *gorm.DB, userID, roleID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`, userID, roleID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
