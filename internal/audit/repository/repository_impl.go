package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/backoffice/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, actor_type, actor_id, action, target_type, target_id,
			correlation_id, request_id, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ActorType,
		entry.ActorID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.CorrelationID,
		entry.RequestID,
		entry.Metadata,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{})
	for column, value := range map[string]string{
		"action":      filter.Action,
		"actor_id":    filter.ActorID,
		"target_type": filter.TargetType,
		"target_id":   filter.TargetID,
	} {
		if value = strings.TrimSpace(value); value != "" {
			stmt = stmt.Where(column+" = ?", value)
		}
	}
	if !filter.Since.IsZero() {
		stmt = stmt.Where("created_at >= ?", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		stmt = stmt.Where("created_at < ?", filter.Until.UTC())
	}
	if c := filter.Cursor; c != nil {
		stmt = stmt.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
	if filter.Limit > 0 {
		// One extra row tells the caller whether another page exists.
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []domain.AuditLog
	if err := stmt.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
