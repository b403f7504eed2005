package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/auth/password"
	"github.com/smallbiznis/backoffice/internal/authorization"
	"github.com/smallbiznis/backoffice/internal/clock"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	roledomain "github.com/smallbiznis/backoffice/internal/role/domain"
	"github.com/smallbiznis/backoffice/internal/user/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	RoleRepo    roledomain.Repository
	Permissions authorization.PermissionSource
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	roleRepo    roledomain.Repository
	permissions authorization.PermissionSource
	auditSvc    auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("user.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		roleRepo:    p.RoleRepo,
		permissions: p.Permissions,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateRequest) (*domain.CreateResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	role, ok := authorization.ParseRole(req.Role)
	if !ok {
		return nil, domain.ErrInvalidRole
	}

	var merchantID *snowflake.ID
	rawMerchant := strings.TrimSpace(req.MerchantID)
	switch {
	case role.IsMerchant() && rawMerchant == "":
		return nil, domain.ErrMerchantRequired
	case !role.IsMerchant() && rawMerchant != "":
		return nil, domain.ErrMerchantNotAllowed
	case rawMerchant != "":
		id, err := parseID(rawMerchant)
		if err != nil {
			return nil, err
		}
		merchantID = &id
	}

	roleIDs, err := parseIDs(req.RoleIDs)
	if err != nil {
		return nil, err
	}

	temporary := ""
	secret := req.Password
	if strings.TrimSpace(secret) == "" {
		if secret, err = password.Temporary(); err != nil {
			return nil, err
		}
		temporary = secret
	}
	if err := password.Validate(secret); err != nil {
		return nil, domain.ErrInvalidPassword
	}
	hash, err := password.Hash(secret)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:                     s.genID.Generate(),
		ExternalID:             uuid.NewString(),
		Email:                  email,
		PasswordHash:           hash,
		Role:                   role,
		MerchantID:             merchantID,
		RequiresPasswordChange: true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrEmailTaken
		}
		if merchantID != nil {
			exists, err := s.repo.MerchantExists(ctx, tx, *merchantID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrMerchantRequired
			}
		}
		if err := s.checkRoles(ctx, tx, role, roleIDs); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrEmailTaken
			}
			return err
		}
		return s.repo.ReplaceRoles(ctx, tx, user.ID, roleIDs, now)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "user.created", user.ID, map[string]any{"role": string(role), "roles": len(roleIDs)})

	view, err := s.view(ctx, s.db, user)
	if err != nil {
		return nil, err
	}
	return &domain.CreateResponse{User: *view, TemporaryPassword: temporary}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	userID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return s.view(ctx, s.db, user)
}

// AssignRoles replaces the full role set of a user.
func (s *Service) AssignRoles(ctx context.Context, req domain.AssignRolesRequest) (*domain.Response, error) {
	userID, err := parseID(req.UserID)
	if err != nil {
		return nil, err
	}
	roleIDs, err := parseIDs(req.RoleIDs)
	if err != nil {
		return nil, err
	}

	err = s.mutateRoles(ctx, userID, func(tx *gorm.DB, user *domain.User) error {
		if err := s.checkRoles(ctx, tx, user.Role, roleIDs); err != nil {
			return err
		}
		return s.repo.ReplaceRoles(ctx, tx, user.ID, roleIDs, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "user.roles_assigned", userID, map[string]any{"roles": len(roleIDs)})
	return s.Get(ctx, userID.String())
}

func (s *Service) AddRole(ctx context.Context, userID, roleID string) (*domain.Response, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	rid, err := parseID(roleID)
	if err != nil {
		return nil, err
	}

	err = s.mutateRoles(ctx, uid, func(tx *gorm.DB, user *domain.User) error {
		if err := s.checkRoles(ctx, tx, user.Role, []snowflake.ID{rid}); err != nil {
			return err
		}
		return s.repo.AddRole(ctx, tx, uid, rid, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "user.role_added", uid, map[string]any{"role_id": rid.String()})
	return s.Get(ctx, uid.String())
}

func (s *Service) RemoveRole(ctx context.Context, userID, roleID string) (*domain.Response, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	rid, err := parseID(roleID)
	if err != nil {
		return nil, err
	}

	removed := false
	err = s.mutateRoles(ctx, uid, func(tx *gorm.DB, _ *domain.User) error {
		var err error
		removed, err = s.repo.RemoveRole(ctx, tx, uid, rid)
		return err
	})
	if err != nil {
		return nil, err
	}

	if removed {
		s.audit(ctx, "user.role_removed", uid, map[string]any{"role_id": rid.String()})
	}
	return s.Get(ctx, uid.String())
}

// Me returns the caller's account, roles and resolved permissions.
func (s *Service) Me(ctx context.Context, userID string) (*domain.MeResponse, error) {
	view, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	id, _ := parseID(view.ID)
	perms, err := s.permissions.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.MeResponse{Response: *view, Permissions: perms.Views()}, nil
}

// mutateRoles runs fn in a transaction and invalidates the user's cached
// permissions once it commits.
func (s *Service) mutateRoles(ctx context.Context, userID snowflake.ID, fn func(tx *gorm.DB, user *domain.User) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrNotFound
		}
		return fn(tx, user)
	})
	if err != nil {
		return err
	}
	if err := s.permissions.Invalidate(ctx, userID); err != nil {
		s.log.Error("permission invalidation failed", zap.String("user_id", userID.String()), zap.Error(err))
		return err
	}
	return nil
}

// checkRoles verifies every role exists and belongs to the user's family.
func (s *Service) checkRoles(ctx context.Context, tx *gorm.DB, role authorization.Role, roleIDs []snowflake.ID) error {
	if len(roleIDs) == 0 {
		return nil
	}
	roles, err := s.roleRepo.ListByIDs(ctx, tx, roleIDs)
	if err != nil {
		return err
	}
	if len(roles) != len(roleIDs) {
		return domain.ErrRoleNotFound
	}
	want := familyOf(role)
	for _, r := range roles {
		if r.Type != want {
			return domain.ErrRoleTypeMismatch
		}
	}
	return nil
}

func (s *Service) view(ctx context.Context, conn *gorm.DB, user *domain.User) (*domain.Response, error) {
	refs, err := s.repo.ListRoles(ctx, conn, user.ID)
	if err != nil {
		return nil, err
	}
	roles := make([]domain.RoleView, 0, len(refs))
	for _, ref := range refs {
		roles = append(roles, domain.RoleView{ID: ref.ID.String(), Name: ref.Name, Type: ref.Type})
	}

	var merchantID *string
	if user.MerchantID != nil {
		value := user.MerchantID.String()
		merchantID = &value
	}
	return &domain.Response{
		ID:                     user.ID.String(),
		Email:                  user.Email,
		Role:                   user.Role,
		MerchantID:             merchantID,
		RequiresPasswordChange: user.RequiresPasswordChange,
		Roles:                  roles,
		CreatedAt:              user.CreatedAt,
	}, nil
}

func (s *Service) audit(ctx context.Context, action string, userID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "user",
		TargetID:   userID.String(),
		Metadata:   metadata,
	})
}

func familyOf(role authorization.Role) featuredomain.RoleType {
	if role.IsMerchant() {
		return featuredomain.RoleTypeMerchant
	}
	return featuredomain.RoleTypePlatformOwner
}

func normalizeEmail(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", domain.ErrInvalidEmail
	}
	return value, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func parseIDs(values []string) ([]snowflake.ID, error) {
	seen := make(map[snowflake.ID]struct{}, len(values))
	out := make([]snowflake.ID, 0, len(values))
	for _, value := range values {
		id, err := parseID(value)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
