package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/clock"
	obscontext "github.com/smallbiznis/backoffice/internal/observability/context"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType := auditdomain.ActorTypeSystem
	var actorID *string
	if actor := obscontext.ActorFromContext(ctx); actor != "" {
		actorType = auditdomain.ActorTypeUser
		actorID = &actor
	}

	ctx, correlationID := obscontext.EnsureCorrelationID(ctx)

	payload := datatypes.JSONMap{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	record := auditdomain.AuditLog{
		ID:            s.genID.Generate(),
		ActorType:     actorType,
		ActorID:       actorID,
		Action:        action,
		TargetType:    targetType,
		TargetID:      strings.TrimSpace(entry.TargetID),
		CorrelationID: correlationID,
		RequestID:     obscontext.RequestIDFromContext(ctx),
		Metadata:      payload,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	if !req.Since.IsZero() && !req.Until.IsZero() && !req.Since.Before(req.Until) {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *auditdomain.AuditCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Size()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:     req.Action,
		ActorID:    req.ActorID,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Since:      req.Since,
		Until:      req.Until,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	logs, pageInfo := pagination.Page(items, limit, func(item auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	return auditdomain.ListResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}
