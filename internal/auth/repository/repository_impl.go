package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/auth/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.SessionRepository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, session *domain.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Limit(1).Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

func (r *repo) Touch(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", sessionID).Update("last_seen_at", lastSeen).Error
}

func (r *repo) Revoke(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", revokedAt).Error
}

func (r *repo) RevokeOthers(ctx context.Context, userID, keep snowflake.ID, revokedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("user_id = ? AND id <> ? AND revoked_at IS NULL", userID, keep).
		Update("revoked_at", revokedAt).Error
}
