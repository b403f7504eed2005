package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/authorization"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	"github.com/smallbiznis/backoffice/internal/role/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	FeatureRepo featuredomain.Repository
	Platform    *config.PlatformConfigHolder
	Invalidator authorization.Invalidator
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	featureRepo featuredomain.Repository
	platform    *config.PlatformConfigHolder
	invalidator authorization.Invalidator
	auditSvc    auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("role.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		featureRepo: p.FeatureRepo,
		platform:    p.Platform,
		invalidator: p.Invalidator,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	roleType := featuredomain.RoleType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if !roleType.Valid() {
		return nil, domain.ErrInvalidType
	}
	if req.HierarchyLevel < 1 {
		return nil, domain.ErrInvalidHierarchyLevel
	}

	now := s.clock.Now()
	record := &domain.Role{
		ID:             s.genID.Generate(),
		Type:           roleType,
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
		HierarchyLevel: req.HierarchyLevel,
		IsSystemRole:   req.IsSystemRole,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByName(ctx, tx, roleType, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrRoleNameTaken
		}

		grants, err := s.normalizeGrants(ctx, tx, record, req.Grants)
		if err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, record); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrRoleNameTaken
			}
			return err
		}
		return s.repo.ReplaceGrants(ctx, tx, record.ID, grants)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "role.created", record, map[string]any{"name": record.Name, "type": string(record.Type)})
	return s.Get(ctx, record.ID.String())
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	var (
		record   *domain.Role
		affected []snowflake.ID
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrNotFound
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			if name != record.Name {
				existing, err := s.repo.FindByName(ctx, tx, record.Type, name)
				if err != nil {
					return err
				}
				if existing != nil {
					return domain.ErrRoleNameTaken
				}
			}
			record.Name = name
		}
		if req.Description != nil {
			record.Description = strings.TrimSpace(*req.Description)
		}
		if req.HierarchyLevel != nil {
			if *req.HierarchyLevel < 1 {
				return domain.ErrInvalidHierarchyLevel
			}
			record.HierarchyLevel = *req.HierarchyLevel
		}

		record.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, record); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrRoleNameTaken
			}
			return err
		}

		// A lowered hierarchy level can invalidate existing grants under
		// the ceiling, so grants are revalidated whenever either changes.
		if req.Grants != nil || req.HierarchyLevel != nil {
			var requested []domain.GrantRequest
			if req.Grants != nil {
				requested = *req.Grants
			} else if requested, err = s.currentGrantRequests(ctx, tx, record.ID); err != nil {
				return err
			}
			grants, err := s.normalizeGrants(ctx, tx, record, requested)
			if err != nil {
				return err
			}
			if err := s.repo.ReplaceGrants(ctx, tx, record.ID, grants); err != nil {
				return err
			}
		}

		affected, err = s.repo.ListAssignedUserIDs(ctx, tx, record.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.invalidator.Invalidate(ctx, affected...); err != nil {
		s.log.Error("permission invalidation failed", zap.String("role_id", id.String()), zap.Error(err))
		return nil, err
	}

	s.audit(ctx, "role.updated", record, map[string]any{"affected_users": len(affected)})
	return s.Get(ctx, record.ID.String())
}

func (s *Service) Delete(ctx context.Context, id string) error {
	roleID, err := parseID(id)
	if err != nil {
		return err
	}

	var (
		record   *domain.Role
		affected []snowflake.ID
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = s.repo.FindByID(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrNotFound
		}
		if record.IsSystemRole {
			return domain.ErrSystemRoleProtected
		}

		affected, err = s.repo.ListAssignedUserIDs(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteAssignments(ctx, tx, roleID); err != nil {
			return err
		}
		if err := s.repo.DeleteGrants(ctx, tx, roleID); err != nil {
			return err
		}
		deleted, err := s.repo.DeleteCustom(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.invalidator.Invalidate(ctx, affected...); err != nil {
		s.log.Error("permission invalidation failed", zap.String("role_id", roleID.String()), zap.Error(err))
		return err
	}

	s.audit(ctx, "role.deleted", record, map[string]any{"name": record.Name, "affected_users": len(affected)})
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	roleID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.FindByID(ctx, s.db, roleID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	resp, err := s.withGrants(ctx, []domain.Role{*record})
	if err != nil {
		return nil, err
	}
	return &resp[0], nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	var filter *featuredomain.RoleType
	if value := strings.TrimSpace(req.Type); value != "" {
		roleType := featuredomain.RoleType(strings.ToUpper(value))
		if !roleType.Valid() {
			return nil, domain.ErrInvalidType
		}
		filter = &roleType
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	return s.withGrants(ctx, items)
}

func (s *Service) withGrants(ctx context.Context, roles []domain.Role) ([]domain.Response, error) {
	ids := make([]snowflake.ID, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	rows, err := s.repo.ListGrants(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	byRole := make(map[snowflake.ID][]domain.GrantResponse, len(roles))
	for _, row := range rows {
		byRole[row.RoleID] = append(byRole[row.RoleID], domain.GrantResponse{
			FeatureID:   row.FeatureID.String(),
			FeatureSlug: row.FeatureSlug,
			Actions:     rowGrant(row.FullAccess, row.Actions).Wire(),
		})
	}

	out := make([]domain.Response, 0, len(roles))
	for _, r := range roles {
		grants := byRole[r.ID]
		if grants == nil {
			grants = []domain.GrantResponse{}
		}
		out = append(out, domain.Response{
			ID:             r.ID.String(),
			Name:           r.Name,
			Description:    r.Description,
			Type:           r.Type,
			HierarchyLevel: r.HierarchyLevel,
			IsSystemRole:   r.IsSystemRole,
			Grants:         grants,
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Service) currentGrantRequests(ctx context.Context, tx *gorm.DB, roleID snowflake.ID) ([]domain.GrantRequest, error) {
	rows, err := s.repo.ListGrants(ctx, tx, []snowflake.ID{roleID})
	if err != nil {
		return nil, err
	}
	out := make([]domain.GrantRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.GrantRequest{
			FeatureID: row.FeatureID.String(),
			Actions:   rowGrant(row.FullAccess, row.Actions).Wire(),
		})
	}
	return out, nil
}

// normalizeGrants validates requested grants against the catalog and
// merges duplicates by union.
func (s *Service) normalizeGrants(ctx context.Context, tx *gorm.DB, role *domain.Role, reqs []domain.GrantRequest) ([]domain.RoleFeature, error) {
	features, err := s.lookupFeatures(ctx, tx, reqs)
	if err != nil {
		return nil, err
	}

	enforceCeiling := s.platform != nil && s.platform.Get().EnforceHierarchyCeiling
	merged := make(map[snowflake.ID]authorization.Grant, len(reqs))
	for i, req := range reqs {
		feature := features[i]
		if feature.RoleType != role.Type {
			return nil, domain.ErrFeatureTypeMismatch
		}
		if enforceCeiling && feature.MinHierarchyLevel > role.HierarchyLevel {
			return nil, domain.ErrHierarchyCeilingExceeded
		}

		grant := authorization.FullGrant()
		if !feature.IsPageLevel {
			for _, action := range req.Actions {
				if !authorization.IsKnownAction(strings.ToLower(strings.TrimSpace(action))) {
					return nil, domain.ErrInvalidAction
				}
			}
			grant = authorization.GrantFromWire(req.Actions)
		}
		if existing, ok := merged[feature.ID]; ok {
			grant = existing.Union(grant)
		}
		merged[feature.ID] = grant
	}

	out := make([]domain.RoleFeature, 0, len(merged))
	for featureID, grant := range merged {
		actions := datatypes.JSONSlice[string]{}
		if !grant.IsFull() {
			actions = datatypes.JSONSlice[string](grant.Actions())
		}
		out = append(out, domain.RoleFeature{
			RoleID:     role.ID,
			FeatureID:  featureID,
			FullAccess: grant.IsFull(),
			Actions:    actions,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeatureID < out[j].FeatureID })
	return out, nil
}

// lookupFeatures returns the feature for each request, in request order.
func (s *Service) lookupFeatures(ctx context.Context, tx *gorm.DB, reqs []domain.GrantRequest) ([]featuredomain.Feature, error) {
	ids := make([]snowflake.ID, 0, len(reqs))
	for _, req := range reqs {
		if strings.TrimSpace(req.FeatureID) == "" {
			continue
		}
		id, err := snowflake.ParseString(strings.TrimSpace(req.FeatureID))
		if err != nil || id == 0 {
			return nil, domain.ErrFeatureNotFound
		}
		ids = append(ids, id)
	}
	found, err := s.featureRepo.ListByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]featuredomain.Feature, len(found))
	for _, f := range found {
		byID[f.ID] = f
	}

	out := make([]featuredomain.Feature, 0, len(reqs))
	for _, req := range reqs {
		if raw := strings.TrimSpace(req.FeatureID); raw != "" {
			id, _ := snowflake.ParseString(raw)
			f, ok := byID[id]
			if !ok {
				return nil, domain.ErrFeatureNotFound
			}
			out = append(out, f)
			continue
		}
		slug := strings.ToLower(strings.TrimSpace(req.FeatureSlug))
		if slug == "" {
			return nil, domain.ErrFeatureNotFound
		}
		f, err := s.featureRepo.FindBySlug(ctx, tx, slug)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, domain.ErrFeatureNotFound
		}
		out = append(out, *f)
	}
	return out, nil
}

func (s *Service) audit(ctx context.Context, action string, role *domain.Role, metadata map[string]any) {
	if s.auditSvc == nil || role == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "role",
		TargetID:   role.ID.String(),
		Metadata:   metadata,
	})
}

func rowGrant(full bool, actions []string) authorization.Grant {
	if full {
		return authorization.FullGrant()
	}
	return authorization.ActionGrant(actions...)
}

func parseID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}
