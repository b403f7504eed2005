// Package seed installs the default feature catalog, the system roles and
// the first platform owner. Every step only creates what is missing.
package seed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/backoffice/internal/auth/password"
	"github.com/smallbiznis/backoffice/internal/authorization"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	roledomain "github.com/smallbiznis/backoffice/internal/role/domain"
	userdomain "github.com/smallbiznis/backoffice/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const ownerRoleName = "Super Admin"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	FeatureRepo featuredomain.Repository
	RoleRepo    roledomain.Repository
	UserRepo    userdomain.Repository
}

type Seeder struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	bootstrap config.BootstrapConfig
	features  featuredomain.Repository
	roles     roledomain.Repository
	users     userdomain.Repository
}

func New(p Params) *Seeder {
	return &Seeder{
		db:        p.DB,
		log:       p.Log.Named("seed"),
		genID:     p.GenID,
		clock:     p.Clock,
		bootstrap: p.Config.Bootstrap,
		features:  p.FeatureRepo,
		roles:     p.RoleRepo,
		users:     p.UserRepo,
	}
}

// Result counts what a run created.
type Result struct {
	Features int
	Roles    int
	Owner    bool
}

func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bySlug, created, err := s.ensureFeatures(ctx, tx)
		if err != nil {
			return fmt.Errorf("seed features: %w", err)
		}
		res.Features = created

		roleIDs, created, err := s.ensureRoles(ctx, tx, bySlug)
		if err != nil {
			return fmt.Errorf("seed roles: %w", err)
		}
		res.Roles = created

		res.Owner, err = s.ensureOwner(ctx, tx, roleIDs[ownerRoleName])
		if err != nil {
			return fmt.Errorf("seed owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.log.Info("seed complete",
		zap.Int("features_created", res.Features),
		zap.Int("roles_created", res.Roles),
		zap.Bool("owner_created", res.Owner),
	)
	return res, nil
}

func (s *Seeder) ensureFeatures(ctx context.Context, tx *gorm.DB) (map[string]featuredomain.Feature, int, error) {
	now := s.clock.Now()
	out := map[string]featuredomain.Feature{}
	created := 0
	for roleType, defs := range map[featuredomain.RoleType][]featureDef{
		featuredomain.RoleTypePlatformOwner: platformFeatures,
		featuredomain.RoleTypeMerchant:      merchantFeatures,
	} {
		for _, def := range defs {
			existing, err := s.features.FindBySlug(ctx, tx, def.slug)
			if err != nil {
				return nil, 0, err
			}
			if existing != nil {
				out[def.slug] = *existing
				continue
			}
			f := featuredomain.Feature{
				ID:                s.genID.Generate(),
				Slug:              def.slug,
				Name:              def.name,
				IsPageLevel:       def.pageOnly,
				RoleType:          roleType,
				MinHierarchyLevel: def.minLevel,
				Active:            true,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := s.features.Create(ctx, tx, &f); err != nil {
				return nil, 0, err
			}
			out[def.slug] = f
			created++
		}
	}
	return out, created, nil
}

// ensureRoles creates missing system roles. Existing ones keep whatever
// grants operators gave them.
func (s *Seeder) ensureRoles(ctx context.Context, tx *gorm.DB, features map[string]featuredomain.Feature) (map[string]snowflake.ID, int, error) {
	now := s.clock.Now()
	ids := map[string]snowflake.ID{}
	created := 0
	for _, def := range systemRoles() {
		existing, err := s.roles.FindByName(ctx, tx, def.roleType, def.name)
		if err != nil {
			return nil, 0, err
		}
		if existing != nil {
			if def.roleType == featuredomain.RoleTypePlatformOwner {
				ids[def.name] = existing.ID
			}
			continue
		}

		role := roledomain.Role{
			ID:             s.genID.Generate(),
			Type:           def.roleType,
			Name:           def.name,
			Description:    def.description,
			HierarchyLevel: def.level,
			IsSystemRole:   true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.roles.Create(ctx, tx, &role); err != nil {
			return nil, 0, err
		}
		grants, err := buildGrants(role, def.grants, features)
		if err != nil {
			return nil, 0, err
		}
		if err := s.roles.ReplaceGrants(ctx, tx, role.ID, grants); err != nil {
			return nil, 0, err
		}
		if def.roleType == featuredomain.RoleTypePlatformOwner {
			ids[def.name] = role.ID
		}
		created++
	}
	return ids, created, nil
}

func buildGrants(role roledomain.Role, grants map[string][]string, features map[string]featuredomain.Feature) ([]roledomain.RoleFeature, error) {
	slugs := make([]string, 0, len(grants))
	for slug := range grants {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	out := make([]roledomain.RoleFeature, 0, len(slugs))
	for _, slug := range slugs {
		f, ok := features[slug]
		if !ok {
			return nil, fmt.Errorf("unknown feature %q", slug)
		}
		if f.RoleType != role.Type {
			return nil, fmt.Errorf("feature %q does not belong to %s roles", slug, role.Type)
		}
		g := authorization.GrantFromWire(grants[slug])
		if f.IsPageLevel {
			g = authorization.FullGrant()
		}
		out = append(out, roledomain.RoleFeature{
			RoleID:     role.ID,
			FeatureID:  f.ID,
			FullAccess: g.IsFull(),
			Actions:    datatypes.JSONSlice[string](g.Wire()),
		})
	}
	return out, nil
}

// ensureOwner creates the bootstrap platform owner when none exists. The
// account must change its password on first login.
func (s *Seeder) ensureOwner(ctx context.Context, tx *gorm.DB, superAdmin snowflake.ID) (bool, error) {
	count, err := s.users.CountByRole(ctx, tx, string(authorization.RolePlatformOwner))
	if err != nil || count > 0 {
		return false, err
	}

	email := strings.ToLower(strings.TrimSpace(s.bootstrap.OwnerEmail))
	if email == "" {
		s.log.Warn("no platform owner exists and BOOTSTRAP_OWNER_EMAIL is empty")
		return false, nil
	}
	if err := password.Validate(s.bootstrap.OwnerPassword); err != nil {
		return false, errors.New("bootstrap owner password is too short")
	}
	hash, err := password.Hash(s.bootstrap.OwnerPassword)
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	owner := &userdomain.User{
		ID:                     s.genID.Generate(),
		ExternalID:             uuid.NewString(),
		Email:                  email,
		PasswordHash:           hash,
		Role:                   authorization.RolePlatformOwner,
		RequiresPasswordChange: true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.users.Create(ctx, tx, owner); err != nil {
		return false, err
	}
	if superAdmin != 0 {
		if err := s.users.ReplaceRoles(ctx, tx, owner.ID, []snowflake.ID{superAdmin}, now); err != nil {
			return false, err
		}
	}
	s.log.Info("bootstrap platform owner created", zap.String("email", email))
	return true, nil
}
