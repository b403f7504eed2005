package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/backoffice/pkg/db/pagination"
)

// Entry describes one mutation. Actor and correlation ids come from the
// request context.
type Entry struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListRequest struct {
	pagination.Pagination
	Action     string    `form:"action"`
	ActorID    string    `form:"actor_id"`
	TargetType string    `form:"target_type"`
	TargetID   string    `form:"target_id"`
	Since      time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until      time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"auditLogs"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
