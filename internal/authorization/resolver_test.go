package authorization

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupResolverDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)

	stmts := []string{
		`CREATE TABLE features (id INTEGER PRIMARY KEY, slug TEXT NOT NULL, is_page_level BOOLEAN NOT NULL, active BOOLEAN NOT NULL)`,
		`CREATE TABLE role_features (role_id INTEGER NOT NULL, feature_id INTEGER NOT NULL, full_access BOOLEAN NOT NULL, actions TEXT NOT NULL)`,
		`CREATE TABLE user_roles (user_id INTEGER NOT NULL, role_id INTEGER NOT NULL)`,
		`INSERT INTO features VALUES (1, 'sales.view', 0, 1), (2, 'products.view', 0, 1), (3, 'reports.view', 1, 1), (4, 'expenses.view', 0, 0)`,
	}
	for _, stmt := range stmts {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func grantRole(t *testing.T, conn *gorm.DB, roleID, featureID int64, full bool, actions string) {
	t.Helper()
	require.NoError(t, conn.Exec(
		`INSERT INTO role_features (role_id, feature_id, full_access, actions) VALUES (?, ?, ?, ?)`,
		roleID, featureID, full, actions,
	).Error)
}

func assignRole(t *testing.T, conn *gorm.DB, userID, roleID int64) {
	t.Helper()
	require.NoError(t, conn.Exec(`INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)`, userID, roleID).Error)
}

func newTestResolver(conn *gorm.DB, cache Cache) *Resolver {
	return NewResolver(ResolverParams{DB: conn, Log: zap.NewNop(), Cache: cache})
}

func TestResolveFullGrantRole(t *testing.T) {
	conn := setupResolverDB(t)
	grantRole(t, conn, 100, 1, true, `[]`)
	assignRole(t, conn, 1, 100)

	set, err := newTestResolver(conn, nil).Resolve(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, set.CanAccess("sales.view", ""))
	assert.True(t, set.CanAccess("sales.view", ActionDelete))
	assert.False(t, set.CanAccess("products.view", ""))
}

func TestResolveUnionsRoles(t *testing.T) {
	conn := setupResolverDB(t)
	grantRole(t, conn, 100, 1, false, `["view"]`)
	grantRole(t, conn, 200, 1, false, `["create"]`)
	grantRole(t, conn, 200, 3, false, `[]`)
	assignRole(t, conn, 1, 100)
	assignRole(t, conn, 1, 200)

	set, err := newTestResolver(conn, nil).Resolve(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, set.HasAction("sales.view", ActionView))
	assert.True(t, set.HasAction("sales.view", ActionCreate))
	assert.False(t, set.HasAction("sales.view", ActionDelete))
	// page-level features are always full grants
	assert.True(t, set.HasAction("reports.view", ActionDelete))
}

func TestResolveSkipsInactiveFeatures(t *testing.T) {
	conn := setupResolverDB(t)
	grantRole(t, conn, 100, 4, true, `[]`)
	assignRole(t, conn, 1, 100)

	set, err := newTestResolver(conn, nil).Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, set.HasFeature("expenses.view"))
}

func TestResolveWithoutRolesIsEmpty(t *testing.T) {
	conn := setupResolverDB(t)
	set, err := newTestResolver(conn, nil).Resolve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestInvalidateDropsCachedPermissions(t *testing.T) {
	conn := setupResolverDB(t)
	grantRole(t, conn, 100, 1, true, `[]`)
	assignRole(t, conn, 1, 100)

	ctx := context.Background()
	resolver := newTestResolver(conn, NewMemoryCache(8, 5*time.Minute))

	set, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	require.True(t, set.HasFeature("sales.view"))

	require.NoError(t, conn.Exec(`DELETE FROM user_roles WHERE user_id = 1`).Error)

	cached, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cached.HasFeature("sales.view"), "cache serves until invalidated")

	require.NoError(t, resolver.Invalidate(ctx, 1))
	fresh, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.False(t, fresh.HasFeature("sales.view"))
}

// gatedCache blocks the first Set until release is closed.
type gatedCache struct {
	Cache
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedCache() *gatedCache {
	c := &gatedCache{
		Cache:   NewMemoryCache(8, 5*time.Minute),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c.armed.Store(true)
	return c
}

func (c *gatedCache) Set(ctx context.Context, userID snowflake.ID, set PermissionSet) error {
	if c.armed.CompareAndSwap(true, false) {
		close(c.entered)
		<-c.release
	}
	return c.Cache.Set(ctx, userID, set)
}

func TestInvalidateDuringCacheWriteIsNotLost(t *testing.T) {
	conn := setupResolverDB(t)
	grantRole(t, conn, 100, 1, true, `[]`)
	assignRole(t, conn, 1, 100)

	ctx := context.Background()
	cache := newGatedCache()
	resolver := newTestResolver(conn, cache)

	resolved := make(chan error, 1)
	go func() {
		_, err := resolver.Resolve(ctx, 1)
		resolved <- err
	}()
	<-cache.entered

	// the resolve loaded its grants and is about to cache them
	require.NoError(t, conn.Exec(`DELETE FROM user_roles WHERE user_id = 1`).Error)

	invalidated := make(chan error, 1)
	go func() { invalidated <- resolver.Invalidate(ctx, 1) }()

	select {
	case <-invalidated:
		t.Fatal("invalidate finished while a cache write was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(cache.release)
	require.NoError(t, <-resolved)
	require.NoError(t, <-invalidated)

	set, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.False(t, set.CanAccess("sales.view", ""))
}

func TestInvalidateSurvivesRedisOutage(t *testing.T) {
	conn := setupResolverDB(t)
	grantRole(t, conn, 100, 1, true, `[]`)
	assignRole(t, conn, 1, 100)

	ctx := context.Background()
	cache, mr := newTestRedisCache(t)
	resolver := newTestResolver(conn, cache)

	set, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	require.True(t, set.HasFeature("sales.view"))
	require.True(t, mr.Exists(redisKey(1)))
	assert.Positive(t, mr.TTL(redisKey(1)))

	require.NoError(t, conn.Exec(`DELETE FROM user_roles WHERE user_id = 1`).Error)
	mr.SetError("LOADING Redis is loading the dataset in memory")

	require.NoError(t, resolver.Invalidate(ctx, 1), "committed changes do not fail on cache errors")

	during, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.False(t, during.HasFeature("sales.view"), "stale users bypass the cache")

	mr.SetError("")
	after, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.False(t, after.HasFeature("sales.view"))
	assert.True(t, mr.Exists(redisKey(1)), "cache is used again once the delete succeeds")
}

func TestInvalidateAllSurvivesRedisOutage(t *testing.T) {
	conn := setupResolverDB(t)
	grantRole(t, conn, 100, 1, true, `[]`)
	assignRole(t, conn, 1, 100)

	ctx := context.Background()
	cache, mr := newTestRedisCache(t)
	resolver := newTestResolver(conn, cache)

	_, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, conn.Exec(`UPDATE features SET active = 0 WHERE id = 1`).Error)
	mr.SetError("LOADING Redis is loading the dataset in memory")
	require.NoError(t, resolver.InvalidateAll(ctx))
	mr.SetError("")

	set, err := resolver.Resolve(ctx, 1)
	require.NoError(t, err)
	assert.False(t, set.HasFeature("sales.view"))
}
