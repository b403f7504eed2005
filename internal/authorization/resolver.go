package authorization

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Invalidator drops cached permission sets. Every mutation that changes
// what a user may do calls it before returning.
type Invalidator interface {
	Invalidate(ctx context.Context, userIDs ...snowflake.ID) error
	InvalidateAll(ctx context.Context) error
}

// PermissionSource resolves permission sets and invalidates them.
type PermissionSource interface {
	Invalidator
	Resolve(ctx context.Context, userID snowflake.ID) (PermissionSet, error)
}

type ResolverParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cache   Cache
	Metrics *metrics.Metrics `optional:"true"`
}

// Resolver flattens a user's role grants into a PermissionSet.
type Resolver struct {
	db      *gorm.DB
	log     *zap.Logger
	cache   Cache
	metrics *metrics.Metrics

	// epoch advances on every invalidation so a resolve that raced with
	// a revoke never writes its stale result back. Resolve holds mu.RLock
	// across the epoch check and the cache write; invalidation holds
	// mu.Lock across the epoch bump and the delete.
	mu    sync.RWMutex
	epoch atomic.Uint64

	// Users whose cached entry could not be deleted. Their reads skip the
	// cache until a later delete succeeds. Guarded by mu.
	stale    map[snowflake.ID]struct{}
	staleAll bool
}

func NewResolver(p ResolverParams) *Resolver {
	return &Resolver{
		db:      p.DB,
		log:     p.Log.Named("authorization.resolver"),
		cache:   p.Cache,
		metrics: p.Metrics,
		stale:   map[snowflake.ID]struct{}{},
	}
}

type grantRow struct {
	FeatureID   snowflake.ID                `gorm:"column:feature_id"`
	FeatureSlug string                      `gorm:"column:feature_slug"`
	IsPageLevel bool                        `gorm:"column:is_page_level"`
	FullAccess  bool                        `gorm:"column:full_access"`
	Actions     datatypes.JSONSlice[string] `gorm:"column:actions"`
}

// Resolve returns the union of all grants across the user's roles.
// Inactive features grant nothing.
func (r *Resolver) Resolve(ctx context.Context, userID snowflake.ID) (PermissionSet, error) {
	useCache := r.cache != nil && r.cacheUsable(ctx, userID)
	if useCache {
		set, ok, err := r.cache.Get(ctx, userID)
		if err != nil {
			r.log.Warn("permission cache read failed", zap.Error(err), zap.String("user_id", userID.String()))
		} else {
			r.metrics.RecordPermissionCache(ctx, ok)
			if ok {
				return set, nil
			}
		}
	}

	epoch := r.epoch.Load()
	set, err := r.load(ctx, userID)
	if err != nil {
		return PermissionSet{}, err
	}
	if useCache {
		r.store(ctx, userID, epoch, set)
	}
	return set, nil
}

func (r *Resolver) store(ctx context.Context, userID snowflake.ID, epoch uint64, set PermissionSet) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.epoch.Load() != epoch {
		return
	}
	if err := r.cache.Set(ctx, userID, set); err != nil {
		r.log.Warn("permission cache write failed", zap.Error(err), zap.String("user_id", userID.String()))
	}
}

// cacheUsable reports whether reads for userID may go through the cache,
// first retrying a delete that failed earlier.
func (r *Resolver) cacheUsable(ctx context.Context, userID snowflake.ID) bool {
	r.mu.RLock()
	_, pending := r.stale[userID]
	dirty := pending || r.staleAll
	r.mu.RUnlock()
	if !dirty {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleAll {
		if err := r.cache.Purge(ctx); err != nil {
			return false
		}
		r.staleAll = false
		r.stale = map[snowflake.ID]struct{}{}
		return true
	}
	if _, pending := r.stale[userID]; pending {
		if err := r.cache.Delete(ctx, userID); err != nil {
			return false
		}
		delete(r.stale, userID)
	}
	return true
}

func (r *Resolver) load(ctx context.Context, userID snowflake.ID) (PermissionSet, error) {
	var rows []grantRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT f.id AS feature_id, f.slug AS feature_slug, f.is_page_level, rf.full_access, rf.actions
		 FROM user_roles ur
		 JOIN role_features rf ON rf.role_id = ur.role_id
		 JOIN features f ON f.id = rf.feature_id
		 WHERE ur.user_id = ? AND f.active = ?`,
		userID,
		true,
	).Scan(&rows).Error
	if err != nil {
		return PermissionSet{}, err
	}

	perms := make([]Permission, 0, len(rows))
	for _, row := range rows {
		grant := ActionGrant(row.Actions...)
		if row.IsPageLevel || row.FullAccess {
			grant = FullGrant()
		}
		perms = append(perms, Permission{
			FeatureSlug: row.FeatureSlug,
			FeatureID:   row.FeatureID,
			Grant:       grant,
		})
	}
	return NewPermissionSet(perms...), nil
}

// Invalidate drops the cached sets of userIDs. A delete that still fails
// after retries is not returned to the caller, whose change is already
// committed: the users are marked stale and bypass the cache until a
// delete goes through.
func (r *Resolver) Invalidate(ctx context.Context, userIDs ...snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch.Add(1)
	if r.cache == nil || len(userIDs) == 0 {
		return nil
	}

	if err := retryCache(ctx, func() error { return r.cache.Delete(ctx, userIDs...) }); err != nil {
		for _, id := range userIDs {
			r.stale[id] = struct{}{}
		}
		r.log.Error("permission cache delete failed, bypassing cache for affected users",
			zap.Int("users", len(userIDs)), zap.Error(err))
	}
	return nil
}

func (r *Resolver) InvalidateAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch.Add(1)
	if r.cache == nil {
		return nil
	}

	if err := retryCache(ctx, func() error { return r.cache.Purge(ctx) }); err != nil {
		r.staleAll = true
		r.log.Error("permission cache purge failed, bypassing cache", zap.Error(err))
	}
	return nil
}

func retryCache(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(3), backoff.WithMaxElapsedTime(time.Second))
	return err
}

var _ PermissionSource = (*Resolver)(nil)
