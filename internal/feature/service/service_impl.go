package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/authorization"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/feature/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Invalidator authorization.Invalidator
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	invalidator authorization.Invalidator
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("feature.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invalidator: p.Invalidator,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, domain.ErrInvalidSlug
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	roleType, err := parseRoleType(string(req.RoleType))
	if err != nil {
		return nil, err
	}
	level := 1
	if req.MinHierarchyLevel != nil {
		level = *req.MinHierarchyLevel
	}
	if level < 1 {
		return nil, domain.ErrInvalidHierarchyLevel
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	record := &domain.Feature{
		ID:                s.genID.Generate(),
		Slug:              slug,
		Name:              name,
		Description:       strings.TrimSpace(req.Description),
		IsPageLevel:       req.IsPageLevel,
		RoleType:          roleType,
		MinHierarchyLevel: level,
		Active:            active,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, s.db, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}

	s.log.Info("feature created", zap.String("slug", slug), zap.String("role_type", string(roleType)))
	resp := toResponse(record)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	// Existing grants are keyed by these fields.
	if req.Slug != nil && strings.ToLower(strings.TrimSpace(*req.Slug)) != item.Slug {
		return nil, domain.ErrImmutableField
	}
	if req.RoleType != nil && *req.RoleType != item.RoleType {
		return nil, domain.ErrImmutableField
	}
	if req.IsPageLevel != nil && *req.IsPageLevel != item.IsPageLevel {
		return nil, domain.ErrImmutableField
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}
	if req.MinHierarchyLevel != nil {
		if *req.MinHierarchyLevel < 1 {
			return nil, domain.ErrInvalidHierarchyLevel
		}
		item.MinHierarchyLevel = *req.MinHierarchyLevel
	}
	activeChanged := req.Active != nil && *req.Active != item.Active
	if req.Active != nil {
		item.Active = *req.Active
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}

	if activeChanged {
		if err := s.invalidator.InvalidateAll(ctx); err != nil {
			return nil, err
		}
	}

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	featureID, err := parseID(id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteUnreferenced(ctx, s.db, featureID)
	if err != nil {
		return err
	}
	if deleted {
		s.log.Info("feature deleted", zap.String("feature_id", featureID.String()))
		return nil
	}

	item, err := s.repo.FindByID(ctx, s.db, featureID)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrNotFound
	}
	return domain.ErrFeatureInUse
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListFilter{}
	if strings.TrimSpace(req.Type) != "" {
		roleType, err := parseRoleType(req.Type)
		if err != nil {
			return nil, err
		}
		filter.RoleType = &roleType
	}
	if req.ActiveOnly {
		active := true
		filter.Active = &active
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*domain.Response, error) {
	item, err := s.repo.FindBySlug(ctx, s.db, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	resp := toResponse(item)
	return &resp, nil
}

func toResponse(f *domain.Feature) domain.Response {
	return domain.Response{
		ID:                f.ID.String(),
		Slug:              f.Slug,
		Name:              f.Name,
		Description:       f.Description,
		IsPageLevel:       f.IsPageLevel,
		RoleType:          f.RoleType,
		MinHierarchyLevel: f.MinHierarchyLevel,
		Active:            f.Active,
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
	}
}

func parseRoleType(value string) (domain.RoleType, error) {
	roleType := domain.RoleType(strings.ToUpper(strings.TrimSpace(value)))
	if !roleType.Valid() {
		return "", domain.ErrInvalidRoleType
	}
	return roleType, nil
}

func parseID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}
