package seed

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/authorization"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	featurerepo "github.com/smallbiznis/backoffice/internal/feature/repository"
	"github.com/smallbiznis/backoffice/internal/migration"
	roledomain "github.com/smallbiznis/backoffice/internal/role/domain"
	rolerepo "github.com/smallbiznis/backoffice/internal/role/repository"
	userdomain "github.com/smallbiznis/backoffice/internal/user/domain"
	userrepo "github.com/smallbiznis/backoffice/internal/user/repository"
	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSeeder(t *testing.T) (*Seeder, *gorm.DB) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	s := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Config: config.Config{Bootstrap: config.BootstrapConfig{
			OwnerEmail:    "Owner@Example.com",
			OwnerPassword: "bootstrap-secret",
		}},
		FeatureRepo: featurerepo.Provide(),
		RoleRepo:    rolerepo.Provide(),
		UserRepo:    userrepo.Provide(),
	})
	return s, conn
}

func TestRunSeedsCatalogRolesAndOwner(t *testing.T) {
	s, conn := newSeeder(t)
	ctx := context.Background()

	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(platformFeatures)+len(merchantFeatures), res.Features)
	assert.Equal(t, 6, res.Roles)
	assert.True(t, res.Owner)

	var owner userdomain.User
	require.NoError(t, conn.First(&owner, "email = ?", "owner@example.com").Error)
	assert.Equal(t, authorization.RolePlatformOwner, owner.Role)
	assert.True(t, owner.RequiresPasswordChange)

	var systemRoles int64
	require.NoError(t, conn.Model(&roledomain.Role{}).Where("is_system_role = ?", true).Count(&systemRoles).Error)
	assert.EqualValues(t, 6, systemRoles)

	resolver := authorization.NewResolver(authorization.ResolverParams{DB: conn, Log: zap.NewNop()})
	perms, err := resolver.Resolve(ctx, owner.ID)
	require.NoError(t, err)
	for _, f := range platformFeatures {
		assert.True(t, perms.HasAction(f.slug, authorization.ActionDelete), f.slug)
	}
	assert.False(t, perms.HasFeature("sales.view"))
}

func TestRunIsIdempotent(t *testing.T) {
	s, conn := newSeeder(t)
	ctx := context.Background()

	_, err := s.Run(ctx)
	require.NoError(t, err)
	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	var features, users int64
	require.NoError(t, conn.Model(&featuredomain.Feature{}).Count(&features).Error)
	require.NoError(t, conn.Model(&userdomain.User{}).Count(&users).Error)
	assert.EqualValues(t, len(platformFeatures)+len(merchantFeatures), features)
	assert.EqualValues(t, 1, users)
}

func TestSeededGrantsMatchRoleScopes(t *testing.T) {
	s, conn := newSeeder(t)
	ctx := context.Background()
	_, err := s.Run(ctx)
	require.NoError(t, err)

	roles := rolerepo.Provide()
	staff, err := roles.FindByName(ctx, conn, featuredomain.RoleTypeMerchant, "Staff")
	require.NoError(t, err)
	require.NotNil(t, staff)

	userID := snowflake.ID(900)
	require.NoError(t, conn.Exec(`INSERT INTO user_roles (user_id, role_id, created_at) VALUES (?, ?, ?)`, userID, staff.ID, time.Now().UTC()).Error)

	resolver := authorization.NewResolver(authorization.ResolverParams{DB: conn, Log: zap.NewNop()})
	perms, err := resolver.Resolve(ctx, userID)
	require.NoError(t, err)
	assert.True(t, perms.CanAccess("sales.view", authorization.ActionView))
	assert.False(t, perms.CanAccess("sales.view", authorization.ActionDelete))
	assert.True(t, perms.CanAccess("sales.create", authorization.ActionCreate))
	assert.False(t, perms.CanAccess("reports.view", ""))
	assert.False(t, perms.CanAccess("staff.manage", ""))

	auditor, err := roles.FindByName(ctx, conn, featuredomain.RoleTypePlatformOwner, "Auditor")
	require.NoError(t, err)
	grants, err := roles.ListGrants(ctx, conn, []snowflake.ID{auditor.ID})
	require.NoError(t, err)
	for _, g := range grants {
		assert.False(t, g.FullAccess, g.FeatureSlug)
		assert.Equal(t, []string{authorization.ActionView}, []string(g.Actions), g.FeatureSlug)
	}
}

func TestBuildGrantsRejectsCrossScopedFeature(t *testing.T) {
	features := map[string]featuredomain.Feature{
		"sales.view": {ID: 1, Slug: "sales.view", RoleType: featuredomain.RoleTypeMerchant},
	}
	role := roledomain.Role{ID: 2, Type: featuredomain.RoleTypePlatformOwner}
	_, err := buildGrants(role, map[string][]string{"sales.view": nil}, features)
	assert.Error(t, err)
}
